package outs

import (
	"context"
	"fmt"
	"sync"

	"akrasiaBot/internal/domain"
)

// Sender es la interfaz que deben implementar los adapters de salida (Discord, consola web)
type Sender interface {
	// channelID: canal al que hay que responder; puede ser un DM ya abierto
	SendMessage(ctx context.Context, platform domain.Platform, channelID, text string) error
	// userID: destinatario de un mensaje directo
	SendDirect(ctx context.Context, platform domain.Platform, userID, text string) error
}

// MultiSender enruta los mensajes al sender correcto según la plataforma.
type MultiSender struct {
	mu      sync.RWMutex
	senders map[domain.Platform]Sender
}

func NewMultiSender() *MultiSender {
	return &MultiSender{
		senders: make(map[domain.Platform]Sender),
	}
}

// Register asocia una plataforma con un Sender concreto.
func (m *MultiSender) Register(platform domain.Platform, sender Sender) {
	if m == nil || sender == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.senders[platform] = sender
}

func (m *MultiSender) Unregister(platform domain.Platform) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.senders, platform)
}

func (m *MultiSender) SendMessage(ctx context.Context, platform domain.Platform, channelID, text string) error {
	sender, err := m.lookup(platform)
	if err != nil {
		return err
	}
	return sender.SendMessage(ctx, platform, channelID, text)
}

func (m *MultiSender) SendDirect(ctx context.Context, platform domain.Platform, userID, text string) error {
	sender, err := m.lookup(platform)
	if err != nil {
		return err
	}
	return sender.SendDirect(ctx, platform, userID, text)
}

func (m *MultiSender) lookup(platform domain.Platform) (Sender, error) {
	if m == nil {
		return nil, fmt.Errorf("no multi sender configured")
	}
	m.mu.RLock()
	sender, ok := m.senders[platform]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no sender registered for platform %s", platform)
	}
	return sender, nil
}

var _ domain.OutgoingMessagePort = (*MultiSender)(nil)
