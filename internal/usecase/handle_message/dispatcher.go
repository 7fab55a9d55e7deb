// Package handle_message despacha cada mensaje entrante a un comando o hook:
// cooldown, resolución de alias, reescritura de DMs, auditoría y ejecución,
// todo dentro de una sesión de persistencia por mensaje.
package handle_message

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"akrasiaBot/internal/domain"
	"akrasiaBot/internal/usecase/commands"
)

// ErrDispatchFailed lo devuelve Handle cuando el despacho terminó en fallo.
// El usuario ya recibió el mensaje de error genérico.
var ErrDispatchFailed = errors.New("dispatch failed")

type Outcome string

const (
	OutcomeIgnored Outcome = "ignored"
	OutcomeBlocked Outcome = "blocked"
	OutcomeUnknown Outcome = "unknown"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

type Config struct {
	Prefix string
	// SelfID es el usuario del propio bot; sus mensajes se ignoran.
	SelfID          string
	FallbackMessage string
}

type Deps struct {
	Sessions  domain.SessionFactory
	Out       domain.OutgoingMessagePort
	Bot       *commands.Bot
	Cooldown  *commands.CooldownGate
	Resolver  *commands.AliasResolver
	Rewriter  *commands.ContextRewriter
	Audit     *commands.AuditLogger
	Publisher domain.ActivityPublisher
	Log       zerolog.Logger
}

type Dispatcher struct {
	cfg  Config
	deps Deps
	now  func() time.Time
}

func NewDispatcher(cfg Config, deps Deps) (*Dispatcher, error) {
	switch {
	case cfg.Prefix == "":
		return nil, fmt.Errorf("dispatcher: empty command prefix")
	case deps.Sessions == nil:
		return nil, fmt.Errorf("dispatcher: sessions nil")
	case deps.Out == nil:
		return nil, fmt.Errorf("dispatcher: out nil")
	case deps.Bot == nil || deps.Bot.Registry == nil:
		return nil, fmt.Errorf("dispatcher: bot registry nil")
	case deps.Cooldown == nil || deps.Resolver == nil || deps.Rewriter == nil || deps.Audit == nil:
		return nil, fmt.Errorf("dispatcher: missing pipeline stage")
	}
	return &Dispatcher{cfg: cfg, deps: deps, now: time.Now}, nil
}

// Handle es la entrada para los adapters.
func (d *Dispatcher) Handle(ctx context.Context, msg domain.Message) error {
	if outcome := d.Dispatch(ctx, msg); outcome == OutcomeFailure {
		return fmt.Errorf("message %s: %w", msg.ID, ErrDispatchFailed)
	}
	return nil
}

// Dispatch procesa un mensaje hasta un estado final. No se cancela a medias:
// la cancelación de ctx no se propaga a la sesión ni a las respuestas.
func (d *Dispatcher) Dispatch(ctx context.Context, msg domain.Message) Outcome {
	ctx = context.WithoutCancel(ctx)

	if d.cfg.SelfID != "" && msg.AuthorID == d.cfg.SelfID {
		return OutcomeIgnored
	}

	prefix := d.cfg.Prefix
	if len(msg.Text) > len(prefix) && strings.HasPrefix(msg.Text, prefix) {
		keyword, args := commands.Tokenize(msg.Text[len(prefix):])
		if keyword == "" {
			return OutcomeIgnored
		}
		return d.run(ctx, msg, event{kind: domain.DispatchCommand, keyword: keyword, args: args})
	}

	clean := strings.ToLower(strings.TrimSpace(msg.Text))
	if clean == "" {
		return OutcomeIgnored
	}
	hook := d.deps.Bot.Registry.MatchHook(clean)
	if hook == nil {
		return OutcomeIgnored
	}
	return d.run(ctx, msg, event{kind: domain.DispatchHook, keyword: hook.Pattern, hook: hook})
}

type event struct {
	kind    domain.DispatchKind
	keyword string
	args    []string
	hook    *commands.Hook
}

func (d *Dispatcher) run(ctx context.Context, msg domain.Message, ev event) Outcome {
	id := uuid.NewString()
	log := d.deps.Log.With().
		Str("dispatch_id", id).
		Str("kind", string(ev.kind)).
		Str("keyword", ev.keyword).
		Str("user_id", msg.AuthorID).
		Logger()

	guildID := msg.GuildID
	finish := func(outcome Outcome) Outcome {
		if d.deps.Publisher != nil {
			d.deps.Publisher.PublishDispatch(domain.DispatchRecord{
				ID:        id,
				Kind:      ev.kind,
				Keyword:   ev.keyword,
				Outcome:   string(outcome),
				UserID:    msg.AuthorID,
				GuildID:   guildID,
				Timestamp: d.now().UTC(),
			})
		}
		return outcome
	}

	session, err := d.deps.Sessions.Open(ctx)
	if err != nil {
		log.Error().Err(err).Msg("couldn't open session")
		d.sendFallback(ctx, msg, log)
		return finish(OutcomeFailure)
	}
	defer func() {
		if err := session.Commit(); err != nil {
			log.Error().Err(err).Msg("final commit failed")
		}
		if err := session.Close(); err != nil {
			log.Warn().Err(err).Msg("couldn't close session")
		}
	}()

	fail := func(err error) Outcome {
		log.Error().Err(err).Msgf("something went wrong during %s %s", ev.kind, ev.keyword)
		d.sendFallback(ctx, msg, log)
		if rbErr := session.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("rollback failed")
		}
		return finish(OutcomeFailure)
	}

	user, err := d.deps.Cooldown.Check(ctx, session, msg, ev.kind)
	if errors.Is(err, commands.ErrCooldown) {
		return finish(OutcomeBlocked)
	}
	if err != nil {
		return fail(err)
	}

	var (
		cmd  commands.Command
		args []string
	)
	if ev.kind == domain.DispatchCommand {
		// la resolución ocurre antes de reescribir el DM, así que el servidor
		// de los alias sale del home server a mano
		serverID := msg.GuildID
		if serverID == "" {
			serverID = user.HomeServerID
		}
		res := d.deps.Resolver.Resolve(ctx, session, ev.keyword, serverID, ev.args)
		switch res.Kind {
		case commands.Unknown:
			log.Info().Msgf("unknown command received: %s", ev.keyword)
			return finish(OutcomeUnknown)
		case commands.Failed:
			return fail(res.Err)
		}
		cmd, args = res.Command, res.Args
	}

	effective, err := d.deps.Rewriter.Rewrite(ctx, msg, user)
	if err != nil {
		return fail(err)
	}
	guildID = effective.GuildID

	if _, err := d.deps.Audit.Record(ctx, session, effective, user); err != nil {
		return fail(err)
	}

	cmdCtx := &commands.Context{
		Bot:     d.deps.Bot,
		Message: effective,
		Args:    args,
		Session: session,
		Out:     d.deps.Out,
		Log:     log,
	}

	var reply string
	if ev.kind == domain.DispatchCommand {
		reply, err = cmd.Handle(ctx, cmdCtx)
	} else {
		reply, err = ev.hook.Handle(ctx, cmdCtx)
	}
	if err != nil {
		return fail(err)
	}

	if err := session.Commit(); err != nil {
		return fail(fmt.Errorf("commit: %w", err))
	}
	if reply != "" {
		if err := d.deps.Out.SendMessage(ctx, effective.Platform, effective.ChannelID, reply); err != nil {
			return fail(fmt.Errorf("send reply: %w", err))
		}
	}

	if ev.kind == domain.DispatchHook {
		if effective.IsDirect() {
			log.Info().Str("user", msg.AuthorName).Msgf("responded to hook %s in DMs", ev.keyword)
		} else {
			log.Info().Str("guild_id", effective.GuildID).Str("guild", effective.GuildName).Msgf("responded to hook %s", ev.keyword)
		}
	} else {
		log.Debug().Msg("command handled")
	}
	return finish(OutcomeSuccess)
}

func (d *Dispatcher) sendFallback(ctx context.Context, msg domain.Message, log zerolog.Logger) {
	if d.cfg.FallbackMessage == "" {
		return
	}
	if err := d.deps.Out.SendMessage(ctx, msg.Platform, msg.ChannelID, d.cfg.FallbackMessage); err != nil {
		log.Warn().Err(err).Msg("couldn't send fallback message")
	}
}
