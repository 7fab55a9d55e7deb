package commands

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"akrasiaBot/internal/domain"
)

const (
	auditTimeLayout     = "01/02/2006 03:04:05 PM"
	maxAuditContentSize = 1000
)

// AuditLogger escribe una entrada por cada comando o hook despachado y la
// confirma en el acto, así sobrevive aunque el comando luego haga rollback.
// Debe llamarse con el contexto ya reescrito.
type AuditLogger struct {
	publisher domain.ActivityPublisher
	log       zerolog.Logger
}

func NewAuditLogger(publisher domain.ActivityPublisher, log zerolog.Logger) *AuditLogger {
	return &AuditLogger{publisher: publisher, log: log}
}

func (a *AuditLogger) Record(ctx context.Context, session domain.Session, msg domain.Message, user *domain.User) (*domain.AuditLogEntry, error) {
	entry := NewAuditEntry(msg, user)

	if err := session.AddAuditEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("audit: add entry: %w", err)
	}
	if err := session.Commit(); err != nil {
		return nil, fmt.Errorf("audit: commit: %w", err)
	}

	if a.publisher != nil {
		a.publisher.PublishAudit(*entry)
	}
	a.log.Debug().Str("message_id", entry.MessageID).Str("guild_id", entry.GuildID).Msg("audit entry recorded")
	return entry, nil
}

func NewAuditEntry(msg domain.Message, user *domain.User) *domain.AuditLogEntry {
	guildID := msg.GuildID
	if guildID == "" {
		guildID = user.ID
	}
	content := fmt.Sprintf("[%s] %s (id: %s) | %s",
		msg.CreatedAt.UTC().Format(auditTimeLayout), msg.AuthorName, msg.AuthorID, msg.Text)

	return &domain.AuditLogEntry{
		MessageID: msg.ID,
		UserID:    user.ID,
		GuildID:   guildID,
		Content:   truncateRunes(content, maxAuditContentSize),
		Timestamp: msg.CreatedAt.UTC(),
	}
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
