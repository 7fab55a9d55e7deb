package domain

import "time"

// AuditLogEntry es inmutable una vez escrita. GuildID es el guild efectivo,
// o el ID del propio usuario cuando el comando llegó por DM sin home server.
type AuditLogEntry struct {
	MessageID string
	UserID    string
	GuildID   string
	Content   string
	Timestamp time.Time
}

type AuditQuery struct {
	GuildID string
	Search  string
	Limit   int
}

type DispatchKind string

const (
	DispatchCommand DispatchKind = "command"
	DispatchHook    DispatchKind = "hook"
)

// DispatchRecord resume cómo terminó un despacho, para el feed en vivo.
type DispatchRecord struct {
	ID        string
	Kind      DispatchKind
	Keyword   string
	Outcome   string
	UserID    string
	GuildID   string
	Timestamp time.Time
}
