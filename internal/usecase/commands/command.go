package commands

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"akrasiaBot/internal/domain"
)

var (
	// ErrUnknownCommand: la palabra clave no es un comando interno ni un alias válido.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrCooldown: el usuario volvió a invocar antes de que venciera su cooldown.
	ErrCooldown = errors.New("cooldown not elapsed")
)

// Command es un comando interno. Handle devuelve el texto a responder (vacío
// si no hay respuesta); cualquier error se trata como fallo del comando.
type Command interface {
	Name() string
	Help(prefix string) string
	Handle(ctx context.Context, c *Context) (string, error)
}

// HookFunc responde a un patrón de texto sin prefijo.
type HookFunc func(ctx context.Context, c *Context) (string, error)

// Bot agrupa lo que los comandos necesitan del proceso. Se construye una vez
// al arrancar.
type Bot struct {
	Prefix   string
	OwnerID  string
	Registry *Registry
	Guilds   domain.GuildDirectory
	Lines    domain.LineSender
}

type Context struct {
	Bot     *Bot
	Message domain.Message
	Args    []string
	Session domain.Session
	Out     domain.OutgoingMessagePort
	Log     zerolog.Logger
}

func (c *Context) IsOwner() bool {
	return c.Bot != nil && c.Bot.OwnerID != "" && c.Message.AuthorID == c.Bot.OwnerID
}

func (c *Context) Reply(ctx context.Context, text string) error {
	return c.Out.SendMessage(ctx, c.Message.Platform, c.Message.ChannelID, text)
}

func (c *Context) Direct(ctx context.Context, text string) error {
	return c.Out.SendDirect(ctx, c.Message.Platform, c.Message.AuthorID, text)
}

func (c *Context) ReplyLines(ctx context.Context, lines []string, codeMode bool) error {
	return c.Bot.Lines.SendLines(ctx, c.Reply, lines, codeMode)
}

func (c *Context) DirectLines(ctx context.Context, lines []string) error {
	return c.Bot.Lines.SendLines(ctx, c.Direct, lines, false)
}

func (c *Context) prefix() string {
	if c.Bot == nil {
		return ""
	}
	return c.Bot.Prefix
}
