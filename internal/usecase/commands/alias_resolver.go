package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"akrasiaBot/internal/domain"
)

// MaxAliasDepth corta cadenas de alias demasiado largas o cíclicas.
const MaxAliasDepth = 8

type ResolutionKind int

const (
	Resolved ResolutionKind = iota
	Unknown
	Failed
)

func (k ResolutionKind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case Unknown:
		return "unknown"
	default:
		return "failed"
	}
}

// Resolution es el resultado de resolver una palabra clave. Con Resolved,
// Command y Args están listos para ejecutar; con Unknown o Failed, Err
// describe el motivo.
type Resolution struct {
	Kind    ResolutionKind
	Keyword string
	Command Command
	Args    []string
	Err     error
}

type AliasResolver struct {
	registry *Registry
	maxDepth int
	log      zerolog.Logger
}

func NewAliasResolver(registry *Registry, log zerolog.Logger) *AliasResolver {
	return &AliasResolver{
		registry: registry,
		maxDepth: MaxAliasDepth,
		log:      log,
	}
}

// Resolve busca keyword entre los comandos internos y, si no está, entre
// los alias de serverID, siguiendo alias que apuntan a otros alias. Los
// argumentos fijos de cada alias se anteponen a args. Con serverID vacío
// solo se consideran los comandos internos.
func (r *AliasResolver) Resolve(ctx context.Context, session domain.Session, keyword, serverID string, args []string) Resolution {
	args = append([]string{}, args...)

	if cmd, ok := r.registry.Lookup(keyword); ok {
		return Resolution{Kind: Resolved, Keyword: normalizeKeyword(keyword), Command: cmd, Args: args}
	}
	if serverID == "" {
		return unknown(keyword)
	}
	return r.resolveAlias(ctx, session, keyword, serverID, args, 1)
}

func (r *AliasResolver) resolveAlias(ctx context.Context, session domain.Session, keyword, serverID string, args []string, depth int) Resolution {
	if depth > r.maxDepth {
		r.log.Warn().
			Str("guild_id", serverID).
			Str("alias", keyword).
			Int("max_depth", r.maxDepth).
			Msg("alias chain too deep, giving up")
		return unknown(keyword)
	}

	alias, err := session.FindAlias(ctx, serverID, keyword)
	if err != nil {
		return Resolution{Kind: Failed, Keyword: keyword, Err: fmt.Errorf("look up alias %q: %w", keyword, err)}
	}
	if alias == nil {
		return unknown(keyword)
	}

	target, fixed := Tokenize(alias.TrueFunction)
	if target == "" {
		return unknown(keyword)
	}
	merged := make([]string, 0, len(fixed)+len(args))
	merged = append(merged, fixed...)
	merged = append(merged, args...)

	if cmd, ok := r.registry.Lookup(target); ok {
		return Resolution{Kind: Resolved, Keyword: target, Command: cmd, Args: merged}
	}

	r.log.Info().
		Str("guild_id", serverID).
		Str("alias", keyword).
		Str("target", target).
		Msg("redirecting alias to another alias")
	return r.resolveAlias(ctx, session, target, serverID, merged, depth+1)
}

func unknown(keyword string) Resolution {
	return Resolution{Kind: Unknown, Keyword: keyword, Err: fmt.Errorf("%w: %s", ErrUnknownCommand, keyword)}
}
