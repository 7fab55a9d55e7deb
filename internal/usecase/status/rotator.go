// Package status rota el estado ("Playing ...") del bot cada cierto tiempo.
package status

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"akrasiaBot/internal/domain"
)

// Rotator elige un estado al azar en cada tick y lo aplica a todas las
// plataformas registradas. No usa sesiones del dispatcher.
type Rotator struct {
	statuses []string
	interval time.Duration
	log      zerolog.Logger
	pick     func(n int) int

	mu      sync.RWMutex
	setters map[domain.Platform]domain.PresenceSetter
}

func NewRotator(statuses []string, interval time.Duration, log zerolog.Logger) (*Rotator, error) {
	if len(statuses) == 0 {
		return nil, errors.New("status: no statuses configured")
	}
	if interval < time.Second {
		return nil, fmt.Errorf("status: interval %s too short", interval)
	}
	return &Rotator{
		statuses: append([]string(nil), statuses...),
		interval: interval,
		log:      log,
		pick:     rand.IntN,
		setters:  make(map[domain.Platform]domain.PresenceSetter),
	}, nil
}

func (r *Rotator) Set(platform domain.Platform, setter domain.PresenceSetter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if setter == nil {
		delete(r.setters, platform)
		return
	}
	r.setters[platform] = setter
}

// Rotate aplica un estado al azar. Devuelve el estado elegido.
func (r *Rotator) Rotate(ctx context.Context) string {
	status := r.statuses[r.pick(len(r.statuses))]

	r.mu.RLock()
	setters := make(map[domain.Platform]domain.PresenceSetter, len(r.setters))
	for platform, s := range r.setters {
		setters[platform] = s
	}
	r.mu.RUnlock()

	for platform, s := range setters {
		if err := s.SetStatus(ctx, status); err != nil {
			r.log.Warn().Err(err).Str("platform", string(platform)).Msg("status: couldn't set status")
			continue
		}
		r.log.Debug().Str("platform", string(platform)).Str("status", status).Msg("status: changed")
	}
	return status
}

// Start programa la rotación y se bloquea hasta que ctx se cancela.
func (r *Rotator) Start(ctx context.Context) error {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", r.interval)
	if _, err := c.AddFunc(spec, func() { r.Rotate(ctx) }); err != nil {
		return fmt.Errorf("status: schedule %q: %w", spec, err)
	}

	r.Rotate(ctx)
	c.Start()
	r.log.Info().Dur("interval", r.interval).Int("statuses", len(r.statuses)).Msg("status: rotation started")

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}
