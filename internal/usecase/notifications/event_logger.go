package notifications

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"akrasiaBot/internal/domain"
)

// EventLogger centraliza el registro de la actividad del dispatcher (entradas
// de auditoría y resultados) para facilitar la futura ingesta, y lleva la
// cuenta de resultados por tipo.
type EventLogger struct {
	log zerolog.Logger
	now func() time.Time

	mu     sync.Mutex
	counts map[string]uint64
}

func NewEventLogger(log zerolog.Logger) *EventLogger {
	return &EventLogger{
		log:    log,
		now:    time.Now,
		counts: make(map[string]uint64),
	}
}

func (l *EventLogger) PublishAudit(entry domain.AuditLogEntry) {
	l.log.Debug().
		Str("event_type", "audit").
		Str("message_id", entry.MessageID).
		Str("guild_id", entry.GuildID).
		Str("user_id", entry.UserID).
		Msg(entry.Content)
}

func (l *EventLogger) PublishDispatch(rec domain.DispatchRecord) {
	l.mu.Lock()
	l.counts[rec.Outcome]++
	l.mu.Unlock()

	ev := l.log.Debug()
	if rec.Outcome == "failure" {
		ev = l.log.Info()
	}
	ev.Str("event_type", "dispatch").
		Str("dispatch_id", rec.ID).
		Str("kind", string(rec.Kind)).
		Str("keyword", rec.Keyword).
		Str("outcome", rec.Outcome).
		Str("received_at", l.now().UTC().Format(time.RFC3339Nano)).
		Msg("dispatch finished")
}

// Counts devuelve una copia de los contadores por resultado.
func (l *EventLogger) Counts() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]uint64, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

var _ domain.ActivityPublisher = (*EventLogger)(nil)

// Fanout reenvía cada evento a todos sus publishers, en orden.
type Fanout []domain.ActivityPublisher

func (f Fanout) PublishAudit(entry domain.AuditLogEntry) {
	for _, p := range f {
		if p != nil {
			p.PublishAudit(entry)
		}
	}
}

func (f Fanout) PublishDispatch(rec domain.DispatchRecord) {
	for _, p := range f {
		if p != nil {
			p.PublishDispatch(rec)
		}
	}
}

var _ domain.ActivityPublisher = Fanout(nil)
