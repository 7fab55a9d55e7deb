package events

import (
	"time"

	"akrasiaBot/internal/domain"
)

// ChatMessageDTO describe un mensaje entrante tal como se envía al feed.
type ChatMessageDTO struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	IsPrivate bool   `json:"is_private"`
	Timestamp string `json:"timestamp"`
}

func NewChatMessageDTO(msg domain.Message) ChatMessageDTO {
	ts := msg.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return ChatMessageDTO{
		Platform:  string(msg.Platform),
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
		UserID:    msg.AuthorID,
		Username:  msg.AuthorName,
		Text:      msg.Text,
		IsPrivate: msg.IsPrivate,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
	}
}

type AuditEntryDTO struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	GuildID   string `json:"guild_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func NewAuditEntryDTO(entry domain.AuditLogEntry) AuditEntryDTO {
	return AuditEntryDTO{
		MessageID: entry.MessageID,
		UserID:    entry.UserID,
		GuildID:   entry.GuildID,
		Content:   entry.Content,
		Timestamp: entry.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

type DispatchDTO struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Keyword   string `json:"keyword"`
	Outcome   string `json:"outcome"`
	UserID    string `json:"user_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

func NewDispatchDTO(rec domain.DispatchRecord) DispatchDTO {
	return DispatchDTO{
		ID:        rec.ID,
		Kind:      string(rec.Kind),
		Keyword:   rec.Keyword,
		Outcome:   rec.Outcome,
		UserID:    rec.UserID,
		GuildID:   rec.GuildID,
		Timestamp: rec.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// AppErrorDTO se publica cuando un componente de fondo falla.
type AppErrorDTO struct {
	Source    string `json:"source"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func NewAppErrorDTO(source string, err error) AppErrorDTO {
	return AppErrorDTO{
		Source:    source,
		Message:   err.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}
