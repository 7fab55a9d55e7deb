// Package discordadapter conecta el bot a Discord vía gateway.
package discordadapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"akrasiaBot/internal/domain"
)

type Config struct {
	Token string
}

// Adapter recibe mensajes de Discord y además hace de Sender, GuildDirectory
// y PresenceSetter para el resto del bot.
type Adapter struct {
	cfg Config

	mu      sync.RWMutex
	handler domain.MessageHandler
	session *discordgo.Session
	selfID  string
	ready   chan struct{}
	once    sync.Once
}

func NewAdapter(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, ready: make(chan struct{})}
}

func (a *Adapter) SetHandler(h domain.MessageHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// SelfID devuelve el usuario del bot una vez recibido el evento Ready.
func (a *Adapter) SelfID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.selfID
}

// Ready se cierra cuando la sesión está lista.
func (a *Adapter) Ready() <-chan struct{} {
	return a.ready
}

func (a *Adapter) Start(ctx context.Context) error {
	if a.cfg.Token == "" {
		return errors.New("discord: token vacío")
	}

	s, err := discordgo.New("Bot " + a.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: new session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	s.StateEnabled = true

	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.mu.Lock()
		a.selfID = r.User.ID
		a.mu.Unlock()
		a.once.Do(func() { close(a.ready) })
		log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord: logged in")
	})

	s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		a.mu.RLock()
		handler, self := a.handler, a.selfID
		a.mu.RUnlock()
		if handler == nil || m.Author == nil || m.Author.ID == self {
			return
		}

		var guild *discordgo.Guild
		if m.GuildID != "" {
			guild, _ = s.State.Guild(m.GuildID)
		}
		msg := mapMessageToDomain(m.Message, guild)
		// cada mensaje en su goroutine para no frenar el gateway
		go func() {
			if err := handler(ctx, msg); err != nil {
				log.Warn().Err(err).Str("message_id", msg.ID).Msg("discord: handler error")
			}
		}()
	})

	if err := s.Open(); err != nil {
		return fmt.Errorf("discord: open: %w", err)
	}
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()

	<-ctx.Done()

	a.mu.Lock()
	a.session = nil
	a.mu.Unlock()
	if err := s.Close(); err != nil {
		log.Warn().Err(err).Msg("discord: close")
	}
	return ctx.Err()
}

func (a *Adapter) conn() (*discordgo.Session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return nil, errors.New("discord: sesión no inicializada o cerrada")
	}
	return a.session, nil
}

func (a *Adapter) SendMessage(ctx context.Context, platform domain.Platform, channelID, text string) error {
	if platform != domain.PlatformDiscord {
		return fmt.Errorf("discord adapter no soporta plataforma %s", platform)
	}
	s, err := a.conn()
	if err != nil {
		return err
	}
	_, err = s.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) SendDirect(ctx context.Context, platform domain.Platform, userID, text string) error {
	if platform != domain.PlatformDiscord {
		return fmt.Errorf("discord adapter no soporta plataforma %s", platform)
	}
	s, err := a.conn()
	if err != nil {
		return err
	}
	ch, err := s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: open DM with %s: %w", userID, err)
	}
	_, err = s.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) SetStatus(_ context.Context, status string) error {
	s, err := a.conn()
	if err != nil {
		return err
	}
	return s.UpdateGameStatus(0, status)
}

func (a *Adapter) Guild(_ context.Context, guildID string) (*domain.Guild, error) {
	s, err := a.conn()
	if err != nil {
		return nil, err
	}
	g, err := s.State.Guild(guildID)
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := mapGuildToDomain(g)
	return &out, nil
}

func (a *Adapter) Member(ctx context.Context, guildID, userID string) (*domain.Member, error) {
	s, err := a.conn()
	if err != nil {
		return nil, err
	}
	g, err := s.State.Guild(guildID)
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m, err := s.State.Member(guildID, userID)
	if errors.Is(err, discordgo.ErrStateNotFound) {
		m, err = s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
		if isNotFound(err) {
			return nil, nil
		}
	}
	if err != nil {
		return nil, err
	}
	out := mapMemberToDomain(g, m)
	return &out, nil
}

func (a *Adapter) Guilds(_ context.Context) ([]domain.Guild, error) {
	s, err := a.conn()
	if err != nil {
		return nil, err
	}
	s.State.RLock()
	defer s.State.RUnlock()
	out := make([]domain.Guild, 0, len(s.State.Guilds))
	for _, g := range s.State.Guilds {
		out = append(out, mapGuildToDomain(g))
	}
	return out, nil
}

var (
	_ domain.GuildDirectory = (*Adapter)(nil)
	_ domain.PresenceSetter = (*Adapter)(nil)
)

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
