package events

import "akrasiaBot/internal/domain"

// Publisher adapta el bus a domain.ActivityPublisher.
type Publisher struct {
	bus *Bus
}

func NewPublisher(bus *Bus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) PublishAudit(entry domain.AuditLogEntry) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(TopicAuditEntry, NewAuditEntryDTO(entry))
}

func (p *Publisher) PublishDispatch(rec domain.DispatchRecord) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(TopicDispatch, NewDispatchDTO(rec))
}

func (p *Publisher) PublishMessage(msg domain.Message) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(TopicChatMessage, NewChatMessageDTO(msg))
}

func (p *Publisher) PublishError(source string, err error) {
	if p == nil || p.bus == nil || err == nil {
		return
	}
	p.bus.Publish(TopicAppError, NewAppErrorDTO(source, err))
}

var _ domain.ActivityPublisher = (*Publisher)(nil)
