package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"akrasiaBot/internal/domain"
)

// SetServerCommand fija el home server del usuario, que es el guild desde el
// que se interpretan sus DMs.
type SetServerCommand struct{}

func NewSetServerCommand() *SetServerCommand {
	return &SetServerCommand{}
}

func (c *SetServerCommand) Name() string {
	return "setserver"
}

func (c *SetServerCommand) Help(prefix string) string {
	return "**setserver** *[server name or ID]*\n" +
		"*Permissions required: none*\n" +
		"    Sets your home server, so commands you send the bot over DMs run as if sent there. No arguments clears it.\n" +
		"    `" + prefix + "setserver crab rave`\n" +
		"    `" + prefix + "setserver`\n"
}

func (c *SetServerCommand) Handle(ctx context.Context, cmdCtx *Context) (string, error) {
	msg := cmdCtx.Message
	log := cmdCtx.Log.With().Str("user", msg.AuthorName).Str("user_id", msg.AuthorID).Logger()

	if len(cmdCtx.Args) == 0 {
		if err := c.store(ctx, cmdCtx, nil); err != nil {
			return "", err
		}
		log.Info().Msg("reset home server")
		return "Cleared your home server!", nil
	}

	guilds := cmdCtx.Bot.Guilds
	if guilds == nil {
		return "", fmt.Errorf("setserver: no guild directory")
	}
	query := strings.Join(cmdCtx.Args, " ")

	if len(cmdCtx.Args) == 1 {
		if _, err := strconv.ParseUint(query, 10, 64); err == nil {
			guild, err := c.visibleGuild(ctx, guilds, query, msg.AuthorID)
			if err != nil {
				return "", err
			}
			if guild != nil {
				if err := c.store(ctx, cmdCtx, guild); err != nil {
					return "", err
				}
				log.Info().Str("guild_id", guild.ID).Str("guild", guild.Name).Msg("set home server")
				return fmt.Sprintf("Set home server to %s!", guild.Name), nil
			}
		}
	}

	matches, err := c.search(ctx, guilds, query, msg.AuthorID)
	if err != nil {
		return "", err
	}

	switch len(matches) {
	case 0:
		log.Info().Str("query", query).Msg("couldn't set home server: no results")
		return "No servers found matching that search term!", nil
	case 1:
		guild := matches[0]
		if err := c.store(ctx, cmdCtx, &guild); err != nil {
			return "", err
		}
		log.Info().Str("guild_id", guild.ID).Str("guild", guild.Name).Msg("set home server")
		return fmt.Sprintf("Set home server to %s!", guild.Name), nil
	}

	lines := []string{fmt.Sprintf("Search returned %d servers:", len(matches))}
	for _, g := range matches {
		lines = append(lines, fmt.Sprintf("    [ID: %s] %s (%d users)", g.ID, g.Name, g.MemberCount))
	}
	lines = append(lines, "Try being more specific, or using one of the IDs given above.")
	log.Info().Str("query", query).Int("results", len(matches)).Msg("couldn't set home server: too many results")

	if msg.IsDirect() {
		return "", cmdCtx.DirectLines(ctx, lines)
	}
	return "", cmdCtx.ReplyLines(ctx, lines, false)
}

// visibleGuild devuelve el guild solo si el bot lo ve y el usuario es miembro.
func (c *SetServerCommand) visibleGuild(ctx context.Context, guilds domain.GuildDirectory, guildID, userID string) (*domain.Guild, error) {
	guild, err := guilds.Guild(ctx, guildID)
	if err != nil || guild == nil {
		return nil, err
	}
	member, err := guilds.Member(ctx, guild.ID, userID)
	if err != nil || member == nil {
		return nil, err
	}
	return guild, nil
}

func (c *SetServerCommand) search(ctx context.Context, guilds domain.GuildDirectory, query, userID string) ([]domain.Guild, error) {
	all, err := guilds.Guilds(ctx)
	if err != nil {
		return nil, fmt.Errorf("setserver: list guilds: %w", err)
	}
	needle := strings.ToLower(query)

	var out []domain.Guild
	for _, g := range all {
		if !strings.Contains(strings.ToLower(g.Name), needle) {
			continue
		}
		member, err := guilds.Member(ctx, g.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("setserver: member %s of %s: %w", userID, g.ID, err)
		}
		if member != nil {
			out = append(out, g)
		}
	}
	return out, nil
}

func (c *SetServerCommand) store(ctx context.Context, cmdCtx *Context, guild *domain.Guild) error {
	user, err := GetOrInitUser(ctx, cmdCtx.Session, cmdCtx.Message, cmdCtx.Log)
	if err != nil {
		return err
	}
	user.HomeServerID = ""
	if guild != nil {
		if _, err := GetOrInitServer(ctx, cmdCtx.Session, *guild, cmdCtx.Log); err != nil {
			return err
		}
		user.HomeServerID = guild.ID
	}
	if err := cmdCtx.Session.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("setserver: save user: %w", err)
	}
	return nil
}
