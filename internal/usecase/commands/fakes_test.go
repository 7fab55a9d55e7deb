package commands

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"akrasiaBot/internal/domain"
	"akrasiaBot/internal/infrastructure/persistence/memory"
)

type sentMessage struct {
	Direct bool
	Target string
	Text   string
}

type fakeOut struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeOut) SendMessage(_ context.Context, _ domain.Platform, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{Target: channelID, Text: text})
	return nil
}

func (f *fakeOut) SendDirect(_ context.Context, _ domain.Platform, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{Direct: true, Target: userID, Text: text})
	return nil
}

func (f *fakeOut) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// joinLines envía cada lista de líneas como un único mensaje.
type joinLines struct{}

func (joinLines) SendLines(ctx context.Context, send func(context.Context, string) error, lines []string, codeMode bool) error {
	text := ""
	for _, l := range lines {
		text += l + "\n"
	}
	if codeMode {
		text = "```\n" + text + "```"
	}
	return send(ctx, text)
}

type fakeGuilds struct {
	guilds  []domain.Guild
	members map[string]map[string]domain.Member
	err     error
}

func newFakeGuilds() *fakeGuilds {
	return &fakeGuilds{members: make(map[string]map[string]domain.Member)}
}

func (f *fakeGuilds) add(guild domain.Guild, members ...domain.Member) {
	f.guilds = append(f.guilds, guild)
	if f.members[guild.ID] == nil {
		f.members[guild.ID] = make(map[string]domain.Member)
	}
	for _, m := range members {
		f.members[guild.ID][m.UserID] = m
	}
}

func (f *fakeGuilds) Guild(_ context.Context, id string) (*domain.Guild, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, g := range f.guilds {
		if g.ID == id {
			out := g
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeGuilds) Member(_ context.Context, guildID, userID string) (*domain.Member, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.members[guildID][userID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeGuilds) Guilds(context.Context) ([]domain.Guild, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Guild(nil), f.guilds...), nil
}

// failingSession falla en las operaciones marcadas y delega el resto.
type failingSession struct {
	domain.Session
	findAliasErr error
	saveUserErr  error
	commitErr    error
}

func (s *failingSession) FindAlias(ctx context.Context, serverID, keyword string) (*domain.Alias, error) {
	if s.findAliasErr != nil {
		return nil, s.findAliasErr
	}
	return s.Session.FindAlias(ctx, serverID, keyword)
}

func (s *failingSession) SaveUser(ctx context.Context, u *domain.User) error {
	if s.saveUserErr != nil {
		return s.saveUserErr
	}
	return s.Session.SaveUser(ctx, u)
}

func (s *failingSession) Commit() error {
	if s.commitErr != nil {
		return s.commitErr
	}
	return s.Session.Commit()
}

var errBoom = errors.New("boom")

var baseTime = time.Date(2024, 3, 9, 15, 4, 5, 0, time.UTC)

const (
	ownerID = "1"
	adminID = "100"
	userID  = "200"
	guildID = "5000"
)

func openSession(t *testing.T, store *memory.Store) domain.Session {
	t.Helper()
	s, err := store.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func guildMessage(authorID, text string, admin bool) domain.Message {
	return domain.Message{
		ID:         "m-" + text,
		Platform:   domain.PlatformDiscord,
		ChannelID:  "chan-1",
		GuildID:    guildID,
		GuildName:  "crab rave",
		AuthorID:   authorID,
		AuthorName: "user-" + authorID,
		Member:     &domain.Member{UserID: authorID, Name: "user-" + authorID, IsAdministrator: admin},
		Text:       text,
		CreatedAt:  baseTime,
	}
}

func directMessage(authorID, text string) domain.Message {
	return domain.Message{
		ID:         "dm-" + text,
		Platform:   domain.PlatformDiscord,
		ChannelID:  "dm-chan",
		AuthorID:   authorID,
		AuthorName: "user-" + authorID,
		Text:       text,
		CreatedAt:  baseTime,
		IsPrivate:  true,
	}
}

type harness struct {
	store    *memory.Store
	registry *Registry
	bot      *Bot
	out      *fakeOut
	guilds   *fakeGuilds
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	registry := NewRegistry()
	if err := RegisterBuiltins(registry); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}
	guilds := newFakeGuilds()
	return &harness{
		store:    memory.NewStore(),
		registry: registry,
		out:      &fakeOut{},
		guilds:   guilds,
		bot: &Bot{
			Prefix:   "!",
			OwnerID:  ownerID,
			Registry: registry,
			Guilds:   guilds,
			Lines:    joinLines{},
		},
	}
}

// run ejecuta un comando interno dentro de una sesión y la confirma.
func (h *harness) run(t *testing.T, msg domain.Message) (string, error) {
	t.Helper()
	keyword, args := Tokenize(msg.Text[len(h.bot.Prefix):])
	cmd, ok := h.registry.Lookup(keyword)
	if !ok {
		t.Fatalf("Lookup(%q) found nothing", keyword)
	}
	session := openSession(t, h.store)
	reply, err := cmd.Handle(context.Background(), &Context{
		Bot:     h.bot,
		Message: msg,
		Args:    args,
		Session: session,
		Out:     h.out,
		Log:     zerolog.Nop(),
	})
	if err == nil {
		if cerr := session.Commit(); cerr != nil {
			t.Fatalf("Commit() error = %v", cerr)
		}
	}
	return reply, err
}

func (h *harness) seedAlias(t *testing.T, keyword, trueFunction string) {
	t.Helper()
	s := openSession(t, h.store)
	ctx := context.Background()
	if err := s.SaveServer(ctx, &domain.Server{ID: guildID, Name: "crab rave"}); err != nil {
		t.Fatalf("SaveServer() error = %v", err)
	}
	if err := s.AddAlias(ctx, &domain.Alias{ServerID: guildID, Keyword: keyword, TrueFunction: trueFunction}); err != nil {
		t.Fatalf("AddAlias() error = %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}
