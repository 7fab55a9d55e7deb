package commands

import (
	"context"
	"fmt"

	"akrasiaBot/internal/domain"
)

// ContextRewriter hace que un DM se vea como escrito en el home server del
// usuario, para que permisos y alias funcionen igual que en un canal.
type ContextRewriter struct {
	guilds domain.GuildDirectory
}

func NewContextRewriter(guilds domain.GuildDirectory) *ContextRewriter {
	return &ContextRewriter{guilds: guilds}
}

// Rewrite devuelve msg sin cambios salvo que sea un DM y el usuario tenga
// home server; en ese caso devuelve una copia con el guild sustituido.
func (r *ContextRewriter) Rewrite(ctx context.Context, msg domain.Message, user *domain.User) (domain.Message, error) {
	if !msg.IsDirect() || user == nil || user.HomeServerID == "" {
		return msg, nil
	}
	if r.guilds == nil {
		return msg, fmt.Errorf("rewrite context: no guild directory")
	}

	guild, err := r.guilds.Guild(ctx, user.HomeServerID)
	if err != nil {
		return msg, fmt.Errorf("rewrite context: guild %s: %w", user.HomeServerID, err)
	}
	if guild == nil {
		return msg, fmt.Errorf("rewrite context: home server %s is not visible to the bot", user.HomeServerID)
	}

	member, err := r.guilds.Member(ctx, guild.ID, msg.AuthorID)
	if err != nil {
		return msg, fmt.Errorf("rewrite context: member %s of %s: %w", msg.AuthorID, guild.ID, err)
	}
	if member == nil {
		return msg, fmt.Errorf("rewrite context: user %s is not a member of home server %s", msg.AuthorID, guild.ID)
	}

	return msg.WithGuildOverride(*guild, *member), nil
}
