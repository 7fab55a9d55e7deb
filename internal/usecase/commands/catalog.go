package commands

import "fmt"

// CommandDescriptor expone cada comando interno para mostrarlo fuera del chat.
type CommandDescriptor struct {
	Name string `json:"name"`
	Help string `json:"help"`
}

// Builtins devuelve los comandos que vienen incluidos en el bot.
func Builtins() []Command {
	return []Command{
		NewAddAliasCommand(),
		NewListAliasesCommand(),
		NewAuditLogCommand(),
		NewDeleteAliasCommand(),
		NewEchoCommand(),
		NewHelpCommand(),
		NewSetServerCommand(),
	}
}

// RegisterBuiltins registra los comandos internos y los hooks por defecto.
func RegisterBuiltins(r *Registry) error {
	for _, cmd := range Builtins() {
		if err := r.Register(cmd); err != nil {
			return err
		}
	}
	if err := r.RegisterHook(MagicEightBallPattern, MagicEightBall); err != nil {
		return fmt.Errorf("register hook: %w", err)
	}
	return nil
}

// Catalog describe los comandos registrados, ordenados por nombre.
func (r *Registry) Catalog(prefix string) []CommandDescriptor {
	names := r.Names()
	out := make([]CommandDescriptor, 0, len(names))
	for _, name := range names {
		out = append(out, CommandDescriptor{Name: name, Help: r.cmdIndex[name].Help(prefix)})
	}
	return out
}
