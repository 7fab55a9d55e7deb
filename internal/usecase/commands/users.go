package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"akrasiaBot/internal/domain"
)

// GetOrInitUser devuelve el usuario del autor, creándolo (sin confirmar) si
// es la primera vez que lo vemos.
func GetOrInitUser(ctx context.Context, session domain.Session, msg domain.Message, log zerolog.Logger) (*domain.User, error) {
	user, err := session.GetUser(ctx, msg.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", msg.AuthorID, err)
	}
	if user != nil {
		return user, nil
	}

	user = &domain.User{ID: msg.AuthorID, Name: msg.AuthorName}
	if err := session.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("add user %s: %w", msg.AuthorID, err)
	}
	log.Debug().Str("user_id", user.ID).Str("user", user.Name).Msg("added user to database")
	return user, nil
}

func GetOrInitServer(ctx context.Context, session domain.Session, guild domain.Guild, log zerolog.Logger) (*domain.Server, error) {
	server, err := session.GetServer(ctx, guild.ID)
	if err != nil {
		return nil, fmt.Errorf("get server %s: %w", guild.ID, err)
	}
	if server != nil {
		return server, nil
	}

	server = &domain.Server{ID: guild.ID, Name: guild.Name}
	if err := session.SaveServer(ctx, server); err != nil {
		return nil, fmt.Errorf("add server %s: %w", guild.ID, err)
	}
	log.Debug().Str("guild_id", server.ID).Str("guild", server.Name).Msg("added server to database")
	return server, nil
}
