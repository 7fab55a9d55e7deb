package commands

import (
	"context"
	"strconv"
	"strings"
)

type EchoCommand struct{}

func NewEchoCommand() *EchoCommand {
	return &EchoCommand{}
}

func (c *EchoCommand) Name() string {
	return "echo"
}

func (c *EchoCommand) Help(prefix string) string {
	return "**echo** *[message]*\n" +
		"*echo [channel] [message]*\n" +
		"*Permissions required: bot instance owner*\n" +
		"    Sends the given message to the given channel, or the current channel if no channel is given.\n" +
		"    `" + prefix + "echo uncle bill gave me his water bill for my third birthday`\n" +
		"    `" + prefix + "echo #general :crab: SHE TOOK THE KIDS :crab:`\n"
}

func (c *EchoCommand) Handle(ctx context.Context, cmdCtx *Context) (string, error) {
	if !cmdCtx.IsOwner() {
		return ownerRequiredMessage, nil
	}
	args := cmdCtx.Args
	if len(args) == 0 {
		return "But nobody came.", nil
	}

	if len(args) > 1 {
		if channelID, ok := parseChannelRef(args[0]); ok {
			text := strings.Join(args[1:], " ")
			err := cmdCtx.Out.SendMessage(ctx, cmdCtx.Message.Platform, channelID, text)
			if err == nil {
				cmdCtx.Log.Info().Str("channel_id", channelID).Str("text", text).Msg("echoed message")
				return "", nil
			}
			cmdCtx.Log.Warn().Err(err).Str("channel_id", channelID).Msg("couldn't echo to channel, falling back to current one")
		}
	}

	text := strings.Join(args, " ")
	if err := cmdCtx.Reply(ctx, text); err != nil {
		return "", err
	}
	cmdCtx.Log.Info().Str("channel_id", cmdCtx.Message.ChannelID).Str("text", text).Msg("echoed message")
	return "", nil
}

// parseChannelRef acepta "<#123>" o "123".
func parseChannelRef(arg string) (string, bool) {
	if strings.HasPrefix(arg, "<#") && strings.HasSuffix(arg, ">") {
		arg = arg[2 : len(arg)-1]
	}
	if _, err := strconv.ParseUint(arg, 10, 64); err != nil {
		return "", false
	}
	return arg, true
}
