package handle_message

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"akrasiaBot/internal/domain"
	"akrasiaBot/internal/infrastructure/persistence/memory"
	"akrasiaBot/internal/infrastructure/persistence/sqlite"
	"akrasiaBot/internal/interface/outs"
	"akrasiaBot/internal/usecase/commands"
)

const (
	fallback = "Something went wrong (please contact <@1> via DMs)"
	guildID  = "5000"
	userID   = "200"
)

var t0 = time.Date(2024, 3, 9, 15, 4, 5, 0, time.UTC)

type funcCommand struct {
	name string
	fn   func(ctx context.Context, c *commands.Context) (string, error)
}

func (f funcCommand) Name() string { return f.name }
func (f funcCommand) Help(string) string { return f.name }
func (f funcCommand) Handle(ctx context.Context, c *commands.Context) (string, error) {
	return f.fn(ctx, c)
}

type fakeOut struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeOut) SendMessage(_ context.Context, _ domain.Platform, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, channelID+": "+text)
	return f.err
}

func (f *fakeOut) SendDirect(_ context.Context, _ domain.Platform, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, "dm "+userID+": "+text)
	return f.err
}

func (f *fakeOut) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeGuilds struct{}

func (fakeGuilds) Guild(_ context.Context, id string) (*domain.Guild, error) {
	if id != guildID {
		return nil, nil
	}
	return &domain.Guild{ID: guildID, Name: "crab rave"}, nil
}

func (fakeGuilds) Member(_ context.Context, gid, uid string) (*domain.Member, error) {
	if gid != guildID {
		return nil, nil
	}
	return &domain.Member{UserID: uid, Name: "nick", IsAdministrator: true}, nil
}

func (fakeGuilds) Guilds(context.Context) ([]domain.Guild, error) {
	return []domain.Guild{{ID: guildID, Name: "crab rave"}}, nil
}

type countingSession struct {
	domain.Session
	closes *atomic.Int64
}

func (s countingSession) Close() error {
	s.closes.Add(1)
	return s.Session.Close()
}

type countingFactory struct {
	inner  domain.SessionFactory
	opens  atomic.Int64
	closes atomic.Int64
}

func (f *countingFactory) Open(ctx context.Context) (domain.Session, error) {
	s, err := f.inner.Open(ctx)
	if err != nil {
		return nil, err
	}
	f.opens.Add(1)
	return countingSession{Session: s, closes: &f.closes}, nil
}

type recordingPublisher struct {
	mu         sync.Mutex
	audits     []domain.AuditLogEntry
	dispatches []domain.DispatchRecord
}

func (p *recordingPublisher) PublishAudit(e domain.AuditLogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audits = append(p.audits, e)
}

func (p *recordingPublisher) PublishDispatch(r domain.DispatchRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatches = append(p.dispatches, r)
}

type fixture struct {
	d *Dispatcher
	// store es nil cuando el fixture corre sobre sqlite
	store   *memory.Store
	factory *countingFactory
	out     *fakeOut
	pub     *recordingPublisher
	logs    *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := newFixtureWith(t, store)
	f.store = store
	return f
}

func newSQLiteFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("sqlite.NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return newFixtureWith(t, store)
}

func newFixtureWith(t *testing.T, sessions domain.SessionFactory) *fixture {
	t.Helper()

	registry := commands.NewRegistry()
	if err := commands.RegisterBuiltins(registry); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}
	extra := []commands.Command{
		funcCommand{"pong", func(context.Context, *commands.Context) (string, error) { return "pong", nil }},
		funcCommand{"args", func(_ context.Context, c *commands.Context) (string, error) {
			return strings.Join(c.Args, "|"), nil
		}},
		funcCommand{"where", func(_ context.Context, c *commands.Context) (string, error) {
			return "guild=" + c.Message.GuildID, nil
		}},
		funcCommand{"fail", func(ctx context.Context, c *commands.Context) (string, error) {
			if err := c.Session.AddAlias(ctx, &domain.Alias{ServerID: guildID, Keyword: "leak", TrueFunction: "pong"}); err != nil {
				return "", err
			}
			return "", errors.New("kaboom")
		}},
	}
	for _, cmd := range extra {
		if err := registry.Register(cmd); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	factory := &countingFactory{inner: sessions}
	out := &fakeOut{}
	pub := &recordingPublisher{}
	logs := &bytes.Buffer{}
	log := zerolog.New(logs).Level(zerolog.DebugLevel)

	bot := &commands.Bot{Prefix: "!", OwnerID: "1", Registry: registry, Guilds: fakeGuilds{}, Lines: outs.NewLineSender(0)}
	d, err := NewDispatcher(
		Config{Prefix: "!", SelfID: "bot", FallbackMessage: fallback},
		Deps{
			Sessions:  factory,
			Out:       out,
			Bot:       bot,
			Cooldown:  commands.NewCooldownGate(2*time.Second, 5*time.Second, log),
			Resolver:  commands.NewAliasResolver(registry, log),
			Rewriter:  commands.NewContextRewriter(fakeGuilds{}),
			Audit:     commands.NewAuditLogger(pub, log),
			Publisher: pub,
			Log:       log,
		},
	)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	return &fixture{d: d, factory: factory, out: out, pub: pub, logs: logs}
}

func (f *fixture) open(t *testing.T) domain.Session {
	t.Helper()
	s, err := f.factory.inner.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func (f *fixture) seedServer(t *testing.T, id string) {
	t.Helper()
	s := f.open(t)
	defer s.Close()
	if err := s.SaveServer(context.Background(), &domain.Server{ID: id, Name: "crab rave"}); err != nil {
		t.Fatalf("SaveServer() error = %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}

func (f *fixture) auditEntries(t *testing.T, guild string) []*domain.AuditLogEntry {
	t.Helper()
	s := f.open(t)
	defer s.Close()
	entries, err := s.QueryAuditLog(context.Background(), domain.AuditQuery{GuildID: guild})
	if err != nil {
		t.Fatalf("QueryAuditLog() error = %v", err)
	}
	return entries
}

func (f *fixture) seedAlias(t *testing.T, keyword, trueFunction string) {
	t.Helper()
	s := f.open(t)
	defer s.Close()
	if err := s.AddAlias(context.Background(), &domain.Alias{ServerID: guildID, Keyword: keyword, TrueFunction: trueFunction}); err != nil {
		t.Fatalf("AddAlias() error = %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}

func (f *fixture) user(t *testing.T, id string) *domain.User {
	t.Helper()
	s := f.open(t)
	defer s.Close()
	u, err := s.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	return u
}

type logLine struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Keyword string `json:"keyword"`
	Error   string `json:"error"`
}

func (f *fixture) logLines(t *testing.T) []logLine {
	t.Helper()
	var out []logLine
	for _, raw := range bytes.Split(bytes.TrimSpace(f.logs.Bytes()), []byte("\n")) {
		if len(raw) == 0 {
			continue
		}
		var l logLine
		if err := json.Unmarshal(raw, &l); err != nil {
			t.Fatalf("bad log line %q: %v", raw, err)
		}
		out = append(out, l)
	}
	return out
}

func msgAt(text string, at time.Time) domain.Message {
	return domain.Message{
		ID:         "m-" + at.Format(time.RFC3339Nano) + text,
		Platform:   domain.PlatformDiscord,
		ChannelID:  "chan-1",
		GuildID:    guildID,
		GuildName:  "crab rave",
		AuthorID:   userID,
		AuthorName: "user",
		Member:     &domain.Member{UserID: userID, Name: "user"},
		Text:       text,
		CreatedAt:  at,
	}
}

func dmAt(text string, at time.Time) domain.Message {
	m := msgAt(text, at)
	m.GuildID, m.GuildName, m.Member = "", "", nil
	m.ChannelID = "dm-chan"
	m.IsPrivate = true
	return m
}

func TestDispatchIgnoresNonCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, msg := range []domain.Message{
		msgAt("hello there", t0),
		msgAt("!", t0),
		msgAt("!   ", t0),
		msgAt("", t0),
		func() domain.Message { m := msgAt("!pong", t0); m.AuthorID = "bot"; return m }(),
	} {
		if got := f.d.Dispatch(ctx, msg); got != OutcomeIgnored {
			t.Fatalf("Dispatch(%q) = %s, want ignored", msg.Text, got)
		}
	}
	if n := f.factory.opens.Load(); n != 0 {
		t.Fatalf("opened %d sessions for ignored messages", n)
	}
}

func TestDispatchSuccessRepliesAndAudits(t *testing.T) {
	f := newFixture(t)

	if got := f.d.Dispatch(context.Background(), msgAt("!PONG", t0)); got != OutcomeSuccess {
		t.Fatalf("Dispatch() = %s, want success", got)
	}
	if got := f.out.messages(); len(got) != 1 || got[0] != "chan-1: pong" {
		t.Fatalf("sent = %q", got)
	}
	entries := f.store.AuditEntries()
	if len(entries) != 1 || entries[0].GuildID != guildID {
		t.Fatalf("audit = %+v", entries)
	}
	if opens, closes := f.factory.opens.Load(), f.factory.closes.Load(); opens != 1 || closes != 1 {
		t.Fatalf("sessions opened %d closed %d, want 1/1", opens, closes)
	}
	if len(f.pub.dispatches) != 1 || f.pub.dispatches[0].Outcome != string(OutcomeSuccess) || f.pub.dispatches[0].Keyword != "pong" {
		t.Fatalf("dispatch records = %+v", f.pub.dispatches)
	}
}

func TestDispatchCooldownBlocksSecondCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if got := f.d.Dispatch(ctx, msgAt("!pong", t0)); got != OutcomeSuccess {
		t.Fatalf("first Dispatch() = %s", got)
	}
	if got := f.d.Dispatch(ctx, msgAt("!pong", t0.Add(time.Second))); got != OutcomeBlocked {
		t.Fatalf("second Dispatch() = %s, want blocked", got)
	}
	if got := f.out.messages(); len(got) != 1 {
		t.Fatalf("sent = %q, want only the first reply", got)
	}
	if n := len(f.store.AuditEntries()); n != 1 {
		t.Fatalf("audit entries = %d, want 1", n)
	}
	if u := f.user(t, userID); !u.LastCommandTime.Equal(t0) {
		t.Fatalf("LastCommandTime = %v, want %v", u.LastCommandTime, t0)
	}
	if n := f.factory.closes.Load(); n != 2 {
		t.Fatalf("closes = %d, want 2", n)
	}

	if got := f.d.Dispatch(ctx, msgAt("!pong", t0.Add(2*time.Second))); got != OutcomeSuccess {
		t.Fatalf("Dispatch() after cooldown = %s", got)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	f := newFixture(t)

	if got := f.d.Dispatch(context.Background(), msgAt("!nosuch thing", t0)); got != OutcomeUnknown {
		t.Fatalf("Dispatch() = %s, want unknown", got)
	}
	if got := f.out.messages(); len(got) != 0 {
		t.Fatalf("sent = %q, want nothing", got)
	}
	if n := len(f.store.AuditEntries()); n != 0 {
		t.Fatalf("audit entries = %d, want 0", n)
	}
	if u := f.user(t, userID); u == nil || !u.LastCommandTime.Equal(t0) {
		t.Fatalf("unknown command did not consume cooldown: %+v", u)
	}

	infos := 0
	for _, l := range f.logLines(t) {
		if l.Level == "error" || l.Level == "warn" {
			t.Fatalf("unexpected %s log: %q", l.Level, l.Message)
		}
		if l.Level == "info" {
			infos++
			if !strings.Contains(l.Message, "unknown command") {
				t.Fatalf("info log = %q", l.Message)
			}
		}
	}
	if infos != 1 {
		t.Fatalf("info logs = %d, want exactly 1", infos)
	}
}

func TestDispatchFailureRollsBackAndSendsFallback(t *testing.T) {
	f := newFixture(t)

	err := f.d.Handle(context.Background(), msgAt("!fail", t0))
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("Handle() error = %v, want ErrDispatchFailed", err)
	}
	if got := f.out.messages(); len(got) != 1 || got[0] != "chan-1: "+fallback {
		t.Fatalf("sent = %q, want one fallback", got)
	}

	s := f.open(t)
	defer s.Close()
	if a, _ := s.FindAlias(context.Background(), guildID, "leak"); a != nil {
		t.Fatalf("handler write survived rollback: %+v", a)
	}
	if n := len(f.store.AuditEntries()); n != 1 {
		t.Fatalf("audit entries = %d, want 1 (committed before handler)", n)
	}
	if u := f.user(t, userID); u == nil || u.LastCommandTime == nil {
		t.Fatalf("failure undid cooldown: %+v", u)
	}
	if n := f.factory.closes.Load(); n != 1 {
		t.Fatalf("closes = %d, want 1", n)
	}

	found := false
	for _, l := range f.logLines(t) {
		if l.Level == "error" && l.Keyword == "fail" && strings.Contains(l.Error, "kaboom") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no error log with keyword and detail: %s", f.logs.String())
	}
}

func TestDispatchSendFailureIsFailure(t *testing.T) {
	f := newFixture(t)
	f.out.err = errors.New("network down")

	if got := f.d.Dispatch(context.Background(), msgAt("!pong", t0)); got != OutcomeFailure {
		t.Fatalf("Dispatch() = %s, want failure", got)
	}
	if got := f.out.messages(); len(got) != 2 || got[1] != "chan-1: "+fallback {
		t.Fatalf("sent = %q, want reply attempt then fallback", got)
	}
}

func TestDispatchAliasChainArgs(t *testing.T) {
	f := newFixture(t)
	f.seedAlias(t, "inner", "args a")
	f.seedAlias(t, "outer", "inner b")

	if got := f.d.Dispatch(context.Background(), msgAt(`!outer "c d" e`, t0)); got != OutcomeSuccess {
		t.Fatalf("Dispatch() = %s", got)
	}
	if got := f.out.messages(); len(got) != 1 || got[0] != "chan-1: a|b|c d|e" {
		t.Fatalf("sent = %q", got)
	}
}

func TestDispatchRewritesDirectMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if got := f.d.Dispatch(ctx, dmAt("!where", t0)); got != OutcomeSuccess {
		t.Fatalf("Dispatch(dm) = %s", got)
	}
	if got := f.d.Dispatch(ctx, dmAt("!setserver "+guildID, t0.Add(10*time.Second))); got != OutcomeSuccess {
		t.Fatalf("Dispatch(setserver) = %s", got)
	}
	f.seedAlias(t, "here", "where")
	if got := f.d.Dispatch(ctx, dmAt("!here", t0.Add(20*time.Second))); got != OutcomeSuccess {
		t.Fatalf("Dispatch(dm alias) = %s", got)
	}

	sent := f.out.messages()
	want := []string{"dm-chan: guild=", "dm-chan: Set home server to crab rave!", "dm-chan: guild=" + guildID}
	if strings.Join(sent, "\n") != strings.Join(want, "\n") {
		t.Fatalf("sent = %q, want %q", sent, want)
	}

	entries := f.store.AuditEntries()
	if len(entries) != 3 {
		t.Fatalf("audit entries = %d, want 3", len(entries))
	}
	if entries[0].GuildID != userID || entries[2].GuildID != guildID {
		t.Fatalf("audit guilds = %q, %q; want user id then home guild", entries[0].GuildID, entries[2].GuildID)
	}
}

func TestDispatchHook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if got := f.d.Dispatch(ctx, msgAt("Akrasia, will it rain?", t0)); got != OutcomeSuccess {
		t.Fatalf("Dispatch(hook) = %s", got)
	}
	if got := f.d.Dispatch(ctx, msgAt("akrasia, again?", t0.Add(time.Second))); got != OutcomeBlocked {
		t.Fatalf("Dispatch(hook within cooldown) = %s, want blocked", got)
	}
	if got := f.d.Dispatch(ctx, msgAt("!pong", t0.Add(time.Second))); got != OutcomeSuccess {
		t.Fatalf("Dispatch(command after hook) = %s, want success", got)
	}

	u := f.user(t, userID)
	if u.LastHookTime == nil || !u.LastHookTime.Equal(t0) {
		t.Fatalf("LastHookTime = %v, want %v", u.LastHookTime, t0)
	}
	if n := len(f.store.AuditEntries()); n != 2 {
		t.Fatalf("audit entries = %d, want 2", n)
	}

	responded := false
	for _, l := range f.logLines(t) {
		if l.Level == "info" && strings.HasPrefix(l.Message, "responded to hook") {
			responded = true
		}
	}
	if !responded {
		t.Fatalf("missing hook info log: %s", f.logs.String())
	}
}

func TestDispatchIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := f.d.Dispatch(ctx, msgAt("!pong", t0)); got != OutcomeSuccess {
		t.Fatalf("Dispatch(cancelled ctx) = %s, want success", got)
	}
}

func TestNewDispatcherValidates(t *testing.T) {
	if _, err := NewDispatcher(Config{}, Deps{}); err == nil {
		t.Fatalf("NewDispatcher() error = nil, want error")
	}
	if _, err := NewDispatcher(Config{Prefix: "!"}, Deps{}); err == nil {
		t.Fatalf("NewDispatcher() error = nil, want error")
	}
}

func TestDispatchFailureRollsBackOnSQLite(t *testing.T) {
	f := newSQLiteFixture(t)
	// la fila del servidor existe para que el alias del handler no falle por
	// la clave foránea y el rollback sea lo único que lo descarta
	f.seedServer(t, guildID)

	if got := f.d.Dispatch(context.Background(), msgAt("!fail", t0)); got != OutcomeFailure {
		t.Fatalf("Dispatch() = %s, want failure", got)
	}
	if got := f.out.messages(); len(got) != 1 || got[0] != "chan-1: "+fallback {
		t.Fatalf("sent = %q, want one fallback", got)
	}

	s := f.open(t)
	if a, err := s.FindAlias(context.Background(), guildID, "leak"); err != nil || a != nil {
		t.Fatalf("FindAlias(leak) = %+v, %v; want rolled back", a, err)
	}
	s.Close()

	if u := f.user(t, userID); u == nil || u.LastCommandTime == nil || !u.LastCommandTime.Equal(t0) {
		t.Fatalf("cooldown not kept after failure: %+v", u)
	}
	if entries := f.auditEntries(t, guildID); len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if opens, closes := f.factory.opens.Load(), f.factory.closes.Load(); opens != 1 || closes != 1 {
		t.Fatalf("sessions opened %d closed %d, want 1/1", opens, closes)
	}
}

func TestConcurrentDispatchOnSQLite(t *testing.T) {
	f := newSQLiteFixture(t)
	const workers = 20

	var wg sync.WaitGroup
	outcomes := make(chan Outcome, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := msgAt("!pong", t0)
			msg.AuthorID = fmt.Sprintf("user-%d", i)
			msg.ID = "m-" + msg.AuthorID
			outcomes <- f.d.Dispatch(context.Background(), msg)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("concurrent dispatches did not finish")
	}
	close(outcomes)

	for outcome := range outcomes {
		if outcome != OutcomeSuccess {
			t.Fatalf("Dispatch() = %s, want success", outcome)
		}
	}
	if n := len(f.out.messages()); n != workers {
		t.Fatalf("sent %d replies, want %d", n, workers)
	}
	if entries := f.auditEntries(t, guildID); len(entries) != workers {
		t.Fatalf("audit entries = %d, want %d", len(entries), workers)
	}
	if opens, closes := f.factory.opens.Load(), f.factory.closes.Load(); opens != workers || closes != workers {
		t.Fatalf("sessions opened %d closed %d, want %d each", opens, closes, workers)
	}
}
