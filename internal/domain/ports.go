package domain

import "context"

// MessageHandler recibe cada mensaje entrante de un transporte.
type MessageHandler func(ctx context.Context, msg Message) error

type OutgoingMessagePort interface {
	SendMessage(ctx context.Context, platform Platform, channelID, text string) error
	SendDirect(ctx context.Context, platform Platform, userID, text string) error
}

// LineSender parte listas largas de líneas en varios mensajes.
type LineSender interface {
	SendLines(ctx context.Context, send func(ctx context.Context, text string) error, lines []string, codeMode bool) error
}

// GuildDirectory expone los guilds que ve el bot. Guild y Member devuelven
// nil, nil cuando no existen.
type GuildDirectory interface {
	Guild(ctx context.Context, guildID string) (*Guild, error)
	Member(ctx context.Context, guildID, userID string) (*Member, error)
	Guilds(ctx context.Context) ([]Guild, error)
}

type PresenceSetter interface {
	SetStatus(ctx context.Context, status string) error
}

type ActivityPublisher interface {
	PublishAudit(entry AuditLogEntry)
	PublishDispatch(rec DispatchRecord)
}

// Session es una unidad de trabajo contra la persistencia. Las lecturas
// devuelven nil, nil cuando la fila no existe. Commit y Rollback sobre una
// sesión sin cambios pendientes no hacen nada; después de Commit la sesión
// sigue siendo usable. Close libera la conexión y descarta lo no confirmado.
type Session interface {
	GetUser(ctx context.Context, id string) (*User, error)
	SaveUser(ctx context.Context, user *User) error

	GetServer(ctx context.Context, id string) (*Server, error)
	SaveServer(ctx context.Context, server *Server) error

	FindAlias(ctx context.Context, serverID, keyword string) (*Alias, error)
	ListAliases(ctx context.Context, serverID string) ([]*Alias, error)
	CountAliases(ctx context.Context, serverID string) (int, error)
	AddAlias(ctx context.Context, alias *Alias) error
	DeleteAlias(ctx context.Context, alias *Alias) error

	AddAuditEntry(ctx context.Context, entry *AuditLogEntry) error
	QueryAuditLog(ctx context.Context, q AuditQuery) ([]*AuditLogEntry, error)

	Commit() error
	Rollback() error
	Close() error
}

type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}
