package commands

import (
	"context"
	"fmt"
	"strings"

	"akrasiaBot/internal/domain"
)

// MaxAliasesPerServer limita cuántos alias puede guardar un servidor.
const MaxAliasesPerServer = 5000

type AddAliasCommand struct{}

func NewAddAliasCommand() *AddAliasCommand {
	return &AddAliasCommand{}
}

func (c *AddAliasCommand) Name() string {
	return "addalias"
}

func (c *AddAliasCommand) Help(prefix string) string {
	return "**addalias** *[old command] [new keyword]*\n" +
		"*Permissions required: administrator*\n" +
		"    Creates a new command that executes old command (optionally with arguments).\n" +
		"    `" + prefix + "addalias echo say` => `" + prefix + "say They speak English in what?`\n" +
		"    `" + prefix + "addalias \"echo AAAAAAAAAAUGH\" SCREAM` => `" + prefix + "SCREAM`\n"
}

func (c *AddAliasCommand) Handle(ctx context.Context, cmdCtx *Context) (string, error) {
	if reply := requireGuildAdmin(cmdCtx, c.Name()); reply != "" {
		return reply, nil
	}
	msg := cmdCtx.Message
	prefix := cmdCtx.prefix()
	log := cmdCtx.Log.With().Str("guild_id", msg.GuildID).Str("guild", msg.GuildName).Logger()

	if len(cmdCtx.Args) != 2 {
		log.Info().Msg("failed to add alias: improper syntax")
		return fmt.Sprintf("Improper syntax (your message should look like this: %saddalias [normal function] [alias])", prefix), nil
	}

	keyword := stripPrefix(prefix, strings.ToLower(strings.TrimSpace(cmdCtx.Args[1])))
	if keyword == "" || strings.ContainsAny(keyword, " \t\n") {
		return "Aliases must be a single word!", nil
	}
	if _, builtin := cmdCtx.Bot.Registry.Lookup(keyword); builtin {
		return fmt.Sprintf("%s is already a built-in command!", keyword), nil
	}

	words := strings.Fields(cmdCtx.Args[0])
	if len(words) == 0 {
		return "The function you're trying to alias to doesn't exist!", nil
	}
	target := stripPrefix(prefix, strings.ToLower(words[0]))
	fixed := words[1:]

	if _, builtin := cmdCtx.Bot.Registry.Lookup(target); !builtin {
		// alias de un alias: guardamos directamente su función real
		existing, err := cmdCtx.Session.FindAlias(ctx, msg.GuildID, target)
		if err != nil {
			return "", fmt.Errorf("look up alias %q: %w", target, err)
		}
		if existing == nil {
			log.Info().Str("alias", keyword).Str("target", target).Msg("failed to add alias: no such true function")
			return "The function you're trying to alias to doesn't exist!", nil
		}
		log.Info().Str("alias", keyword).Str("via", existing.Keyword).Str("target", existing.TrueFunction).
			Msg("redirecting new alias to existing alias' true function")
		target = existing.TrueFunction
	}
	trueFunction := strings.Join(append([]string{target}, fixed...), " ")

	existing, err := cmdCtx.Session.FindAlias(ctx, msg.GuildID, keyword)
	if err != nil {
		return "", fmt.Errorf("check alias %q: %w", keyword, err)
	}
	if existing != nil {
		log.Info().Str("alias", keyword).Str("existing", existing.TrueFunction).Msg("failed to add alias: already exists")
		return fmt.Sprintf("Alias already exists! (you can delete it using %sdeletealias)", prefix), nil
	}

	count, err := cmdCtx.Session.CountAliases(ctx, msg.GuildID)
	if err != nil {
		return "", fmt.Errorf("count aliases: %w", err)
	}
	if count >= MaxAliasesPerServer {
		log.Error().Int("count", count).Msg("couldn't add alias: server reached max aliases")
		return fmt.Sprintf("Too many aliases on this server (%d). You should delete some with %sdeletealias", MaxAliasesPerServer, prefix), nil
	}

	if _, err := GetOrInitServer(ctx, cmdCtx.Session, domain.Guild{ID: msg.GuildID, Name: msg.GuildName}, log); err != nil {
		return "", err
	}
	alias := &domain.Alias{ServerID: msg.GuildID, Keyword: keyword, TrueFunction: trueFunction}
	if err := cmdCtx.Session.AddAlias(ctx, alias); err != nil {
		return "", fmt.Errorf("add alias %q => %q: %w", keyword, trueFunction, err)
	}

	log.Info().Str("alias", keyword).Str("target", trueFunction).Msg("added alias")
	return fmt.Sprintf("Added alias %s => %s!", keyword, trueFunction), nil
}

type DeleteAliasCommand struct{}

func NewDeleteAliasCommand() *DeleteAliasCommand {
	return &DeleteAliasCommand{}
}

func (c *DeleteAliasCommand) Name() string {
	return "deletealias"
}

func (c *DeleteAliasCommand) Help(prefix string) string {
	return "**deletealias** *[alias]*\n" +
		"*Permissions required: administrator*\n" +
		"    Deletes an existing alias.\n" +
		"    `" + prefix + "deletealias SCREAM`\n"
}

func (c *DeleteAliasCommand) Handle(ctx context.Context, cmdCtx *Context) (string, error) {
	if reply := requireGuildAdmin(cmdCtx, c.Name()); reply != "" {
		return reply, nil
	}
	msg := cmdCtx.Message
	prefix := cmdCtx.prefix()

	if len(cmdCtx.Args) != 1 {
		return fmt.Sprintf("Improper syntax (your message should look like this: %sdeletealias [alias])", prefix), nil
	}
	keyword := stripPrefix(prefix, strings.ToLower(strings.TrimSpace(cmdCtx.Args[0])))

	existing, err := cmdCtx.Session.FindAlias(ctx, msg.GuildID, keyword)
	if err != nil {
		return "", fmt.Errorf("check alias %q: %w", keyword, err)
	}
	if existing == nil {
		cmdCtx.Log.Info().Str("guild_id", msg.GuildID).Str("alias", keyword).Msg("failed to remove alias: not found")
		return "No such alias exists!", nil
	}
	if err := cmdCtx.Session.DeleteAlias(ctx, existing); err != nil {
		return "", fmt.Errorf("delete alias %q: %w", keyword, err)
	}

	cmdCtx.Log.Info().Str("guild_id", msg.GuildID).Str("alias", keyword).Msg("deleted alias")
	return fmt.Sprintf("Deleted alias %s!", keyword), nil
}

type ListAliasesCommand struct{}

func NewListAliasesCommand() *ListAliasesCommand {
	return &ListAliasesCommand{}
}

func (c *ListAliasesCommand) Name() string {
	return "aliases"
}

func (c *ListAliasesCommand) Help(prefix string) string {
	return "**aliases**\n" +
		"*Permissions required: administrator*\n" +
		"    Lists all aliases on the current server. Be careful about running this if you've got a billion aliases.\n" +
		"    `" + prefix + "aliases`\n"
}

func (c *ListAliasesCommand) Handle(ctx context.Context, cmdCtx *Context) (string, error) {
	if reply := requireGuildAdmin(cmdCtx, c.Name()); reply != "" {
		return reply, nil
	}

	list, err := cmdCtx.Session.ListAliases(ctx, cmdCtx.Message.GuildID)
	if err != nil {
		return "", fmt.Errorf("list aliases: %w", err)
	}
	if len(list) == 0 {
		return "No aliases found!", nil
	}

	if err := cmdCtx.Reply(ctx, fmt.Sprintf("%d aliases:", len(list))); err != nil {
		return "", err
	}
	lines := make([]string, 0, len(list))
	for _, a := range list {
		lines = append(lines, fmt.Sprintf("%s => %s", a.Keyword, a.TrueFunction))
	}
	return "", cmdCtx.ReplyLines(ctx, lines, false)
}
