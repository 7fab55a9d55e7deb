package domain

import "time"

type Platform string

const (
	PlatformDiscord Platform = "discord"
	// consola web servida por el feed de auditoría
	PlatformConsole Platform = "console"
)

// Message es el evento entrante ya normalizado por el adapter. Se trata como
// valor inmutable: para cambiar el contexto se construye una copia.
type Message struct {
	ID        string
	Platform  Platform
	ChannelID string

	// GuildID vacío significa DM.
	GuildID   string
	GuildName string

	AuthorID   string
	AuthorName string
	Member     *Member

	Text      string
	CreatedAt time.Time
	IsPrivate bool
}

func (m Message) IsDirect() bool {
	return m.GuildID == ""
}

// WithGuildOverride devuelve una copia del mensaje vista desde guild, con
// member como autor dentro de ese guild. El resto de campos no cambia.
func (m Message) WithGuildOverride(guild Guild, member Member) Message {
	out := m
	out.GuildID = guild.ID
	out.GuildName = guild.Name
	out.Member = &member
	return out
}

// IsAdministrator indica si el autor tiene permisos de administrador en el
// guild efectivo del mensaje.
func (m Message) IsAdministrator() bool {
	return m.Member != nil && m.Member.IsAdministrator
}
