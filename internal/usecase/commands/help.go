package commands

import (
	"context"
	"fmt"
	"strings"
)

type HelpCommand struct{}

func NewHelpCommand() *HelpCommand {
	return &HelpCommand{}
}

func (c *HelpCommand) Name() string {
	return "help"
}

func (c *HelpCommand) Help(prefix string) string {
	return "**help** *[command]*\n" +
		"*Permissions required: none*\n" +
		"    DMs you the help text for a command. Aliases show the help of the command they point to.\n" +
		"    `" + prefix + "help addalias`\n"
}

func (c *HelpCommand) Handle(ctx context.Context, cmdCtx *Context) (string, error) {
	registry := cmdCtx.Bot.Registry

	if len(cmdCtx.Args) == 0 {
		lines := []string{fmt.Sprintf("Must run %shelp with a specific command! Here's a list of commands:", cmdCtx.prefix())}
		lines = append(lines, registry.Names()...)
		return "", cmdCtx.DirectLines(ctx, lines)
	}

	keyword := stripPrefix(cmdCtx.prefix(), strings.ToLower(cmdCtx.Args[0]))
	cmd, ok := registry.Lookup(keyword)
	if !ok {
		if cmdCtx.Message.IsDirect() {
			return "This server doesn't have that command!", nil
		}
		alias, err := cmdCtx.Session.FindAlias(ctx, cmdCtx.Message.GuildID, keyword)
		if err != nil {
			return "", fmt.Errorf("look up alias %q: %w", keyword, err)
		}
		if alias == nil {
			return "This server doesn't have that command!", nil
		}
		target, _ := Tokenize(alias.TrueFunction)
		if cmd, ok = registry.Lookup(target); !ok {
			return "This server doesn't have that command!", nil
		}
	}

	return "", cmdCtx.Direct(ctx, cmd.Help(cmdCtx.prefix()))
}
