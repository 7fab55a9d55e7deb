package commands

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

type Hook struct {
	Pattern string
	re      *regexp.Regexp
	Handle  HookFunc
}

// Registry indexa comandos internos y hooks. Se rellena al arrancar y
// después solo se lee, por eso no lleva mutex.
type Registry struct {
	cmdIndex map[string]Command
	hooks    []*Hook
}

func NewRegistry() *Registry {
	return &Registry{
		cmdIndex: make(map[string]Command),
	}
}

func (r *Registry) Register(cmd Command) error {
	name := normalizeKeyword(cmd.Name())
	if name == "" {
		return fmt.Errorf("registry: command with empty name")
	}
	if _, exists := r.cmdIndex[name]; exists {
		return fmt.Errorf("registry: command %q already registered", name)
	}
	r.cmdIndex[name] = cmd
	return nil
}

// RegisterHook añade un hook. pattern es una expresión regular que se
// compara contra el inicio del texto en minúsculas.
func (r *Registry) RegisterHook(pattern string, fn HookFunc) error {
	if fn == nil {
		return fmt.Errorf("registry: hook %q without handler", pattern)
	}
	for _, h := range r.hooks {
		if h.Pattern == pattern {
			return fmt.Errorf("registry: hook %q already registered", pattern)
		}
	}
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return fmt.Errorf("registry: hook %q: %w", pattern, err)
	}
	r.hooks = append(r.hooks, &Hook{Pattern: pattern, re: re, Handle: fn})
	return nil
}

func (r *Registry) Lookup(keyword string) (Command, bool) {
	cmd, ok := r.cmdIndex[normalizeKeyword(keyword)]
	return cmd, ok
}

// MatchHook devuelve el primer hook que encaja, en orden de registro.
func (r *Registry) MatchHook(text string) *Hook {
	for _, h := range r.hooks {
		if h.re.MatchString(text) {
			return h
		}
	}
	return nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.cmdIndex))
	for name := range r.cmdIndex {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func normalizeKeyword(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
