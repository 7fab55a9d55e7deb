package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"akrasiaBot/internal/domain"
	"akrasiaBot/internal/interface/outs"
)

// PlatformAdapter es un transporte de chat: recibe mensajes y envía respuestas.
type PlatformAdapter interface {
	outs.Sender
	SetHandler(h domain.MessageHandler)
	Start(ctx context.Context) error
}

type ManagerConfig struct {
	Context  context.Context
	MultiOut *outs.MultiSender
}

// PlatformManager arranca y para adapters, y los da de alta en el
// MultiSender mientras están activos.
type PlatformManager struct {
	ctx      context.Context
	multiOut *outs.MultiSender

	handlerMu sync.RWMutex
	handler   domain.MessageHandler

	mu       sync.Mutex
	runtimes map[domain.Platform]*platformRuntime
}

type platformRuntime struct {
	cancel  context.CancelFunc
	done    chan struct{}
	adapter PlatformAdapter
}

func NewPlatformManager(cfg ManagerConfig) *PlatformManager {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return &PlatformManager{
		ctx:      ctx,
		multiOut: cfg.MultiOut,
		runtimes: make(map[domain.Platform]*platformRuntime),
	}
}

func (m *PlatformManager) SetHandler(handler domain.MessageHandler) {
	m.handlerMu.Lock()
	m.handler = handler
	m.handlerMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rt := range m.runtimes {
		rt.adapter.SetHandler(handler)
	}
}

func (m *PlatformManager) currentHandler() domain.MessageHandler {
	m.handlerMu.RLock()
	defer m.handlerMu.RUnlock()
	return m.handler
}

// Enable arranca adapter en su goroutine. Si ya había uno para la
// plataforma, se para primero.
func (m *PlatformManager) Enable(platform domain.Platform, adapter PlatformAdapter) error {
	if adapter == nil {
		return fmt.Errorf("platform manager: adapter nil for %s", platform)
	}
	m.Disable(platform)

	if h := m.currentHandler(); h != nil {
		adapter.SetHandler(h)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	rt := &platformRuntime{cancel: cancel, done: make(chan struct{}), adapter: adapter}

	m.mu.Lock()
	m.runtimes[platform] = rt
	m.mu.Unlock()
	m.multiOut.Register(platform, adapter)

	go func() {
		defer close(rt.done)
		err := adapter.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("platform", string(platform)).Msg("platform manager: adapter stopped")
		}
		m.mu.Lock()
		if m.runtimes[platform] == rt {
			delete(m.runtimes, platform)
			m.multiOut.Unregister(platform)
		}
		m.mu.Unlock()
	}()

	log.Info().Str("platform", string(platform)).Msg("platform manager: adapter enabled")
	return nil
}

// Disable para el adapter de la plataforma y espera a que termine.
func (m *PlatformManager) Disable(platform domain.Platform) {
	m.mu.Lock()
	rt := m.runtimes[platform]
	delete(m.runtimes, platform)
	m.mu.Unlock()
	if rt == nil {
		return
	}

	m.multiOut.Unregister(platform)
	rt.cancel()
	<-rt.done
}

func (m *PlatformManager) Enabled(platform domain.Platform) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.runtimes[platform]
	return ok
}

func (m *PlatformManager) Shutdown() {
	m.mu.Lock()
	platforms := make([]domain.Platform, 0, len(m.runtimes))
	for p := range m.runtimes {
		platforms = append(platforms, p)
	}
	m.mu.Unlock()

	for _, p := range platforms {
		m.Disable(p)
	}
}
