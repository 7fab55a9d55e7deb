package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"akrasiaBot/internal/domain"
)

// CooldownGate limita cada cuánto puede un usuario lanzar comandos o hooks.
// El timestamp se confirma antes de ejecutar nada: un comando que falla no
// sirve para saltarse el cooldown. Dos eventos casi simultáneos del mismo
// usuario pueden pasar ambos; no hay bloqueo de filas.
type CooldownGate struct {
	command time.Duration
	hook    time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

func NewCooldownGate(command, hook time.Duration, log zerolog.Logger) *CooldownGate {
	return &CooldownGate{
		command: command,
		hook:    hook,
		now:     time.Now,
		log:     log,
	}
}

// SetClock reemplaza el reloj usado cuando el mensaje no trae hora.
func (g *CooldownGate) SetClock(now func() time.Time) {
	g.now = now
}

// Check devuelve el usuario si puede continuar. Si el cooldown no ha vencido
// devuelve un error que envuelve ErrCooldown y no escribe nada.
func (g *CooldownGate) Check(ctx context.Context, session domain.Session, msg domain.Message, kind domain.DispatchKind) (*domain.User, error) {
	user, err := GetOrInitUser(ctx, session, msg, g.log)
	if err != nil {
		return nil, err
	}

	now := msg.CreatedAt
	if now.IsZero() {
		now = g.now()
	}

	last, cooldown := user.LastCommandTime, g.command
	if kind == domain.DispatchHook {
		last, cooldown = user.LastHookTime, g.hook
	}

	if last != nil && now.Sub(*last) < cooldown {
		g.log.Warn().
			Str("user", user.Name).
			Str("user_id", user.ID).
			Str("kind", string(kind)).
			Dur("elapsed", now.Sub(*last)).
			Msg("user invoked again before their cooldown was up")
		return nil, fmt.Errorf("%w: %s for user %s", ErrCooldown, kind, user.ID)
	}

	stamp := now.UTC()
	if kind == domain.DispatchHook {
		user.LastHookTime = &stamp
	} else {
		user.LastCommandTime = &stamp
	}
	if err := session.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("cooldown: save user: %w", err)
	}
	if err := session.Commit(); err != nil {
		return nil, fmt.Errorf("cooldown: commit: %w", err)
	}
	return user, nil
}
