package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"akrasiaBot/internal/app"
	"akrasiaBot/internal/app/events"
	"akrasiaBot/internal/domain"
	"akrasiaBot/internal/infrastructure/config"
	"akrasiaBot/internal/infrastructure/persistence/memory"
	sqlitestorage "akrasiaBot/internal/infrastructure/persistence/sqlite"
	discordadapter "akrasiaBot/internal/interface/adapters/discord"
	ws "akrasiaBot/internal/interface/api/ws"
	"akrasiaBot/internal/interface/outs"
	"akrasiaBot/internal/usecase/commands"
	"akrasiaBot/internal/usecase/handle_message"
	"akrasiaBot/internal/usecase/notifications"
	statususecase "akrasiaBot/internal/usecase/status"
)

type Options struct {
	// Config evita leer el entorno; si es nil se usa config.Load.
	Config *config.Config
}

type Runtime struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config

	sessions  domain.SessionFactory
	closer    io.Closer
	bus       *events.Bus
	publisher *events.Publisher
	activity  *notifications.EventLogger
	multiOut  *outs.MultiSender
	platform  *app.PlatformManager
	registry  *commands.Registry

	discord    *discordadapter.Adapter
	wsServer   *ws.Server
	rotator    *statususecase.Rotator
	dispatcher *handle_message.Dispatcher

	wg      sync.WaitGroup
	started bool
}

func Start(ctx context.Context, opts Options) (*Runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	runtimeCtx, cancel := context.WithCancel(ctx)
	run := &Runtime{
		ctx:    runtimeCtx,
		cancel: cancel,
		cfg:    cfg,
	}

	if cfg.UsesMemoryDatabase() {
		run.sessions = memory.NewStore()
		log.Warn().Msg("using in-memory database, nothing will survive a restart")
	} else {
		store, err := sqlitestorage.NewStore(cfg.DatabasePath)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		run.sessions = store
		run.closer = store
		log.Info().Str("path", cfg.DatabasePath).Msg("connected to database")
	}

	run.bus = events.NewBus()
	run.publisher = events.NewPublisher(run.bus)
	run.multiOut = outs.NewMultiSender()
	run.platform = app.NewPlatformManager(app.ManagerConfig{Context: runtimeCtx, MultiOut: run.multiOut})

	run.registry = commands.NewRegistry()
	if err := commands.RegisterBuiltins(run.registry); err != nil {
		run.abort()
		return nil, fmt.Errorf("commands: %w", err)
	}

	var guilds domain.GuildDirectory
	if cfg.DiscordToken != "" {
		run.discord = discordadapter.NewAdapter(discordadapter.Config{Token: cfg.DiscordToken})
		guilds = run.discord
	} else {
		log.Warn().Msg("DISCORD_BOT_TOKEN not set, only the console feed will receive messages")
	}

	bot := &commands.Bot{
		Prefix:   cfg.CommandPrefix,
		OwnerID:  cfg.OwnerID,
		Registry: run.registry,
		Guilds:   guilds,
		Lines:    outs.NewLineSender(cfg.SendInterval),
	}

	dispatcherLog := log.Logger.With().Str("component", "dispatcher").Logger()
	run.activity = notifications.NewEventLogger(log.Logger.With().Str("component", "activity").Logger())
	activity := notifications.Fanout{run.publisher, run.activity}
	dispatcher, err := handle_message.NewDispatcher(
		handle_message.Config{
			Prefix:          cfg.CommandPrefix,
			FallbackMessage: cfg.FallbackMessage(),
		},
		handle_message.Deps{
			Sessions:  run.sessions,
			Out:       run.multiOut,
			Bot:       bot,
			Cooldown:  commands.NewCooldownGate(cfg.CommandCooldown, cfg.HookCooldown, dispatcherLog),
			Resolver:  commands.NewAliasResolver(run.registry, dispatcherLog),
			Rewriter:  commands.NewContextRewriter(guilds),
			Audit:     commands.NewAuditLogger(activity, dispatcherLog),
			Publisher: activity,
			Log:       dispatcherLog,
		},
	)
	if err != nil {
		run.abort()
		return nil, err
	}
	run.dispatcher = dispatcher
	run.platform.SetHandler(run.handleMessage)

	if run.discord != nil {
		if err := run.platform.Enable(domain.PlatformDiscord, run.discord); err != nil {
			run.abort()
			return nil, err
		}
	}

	if cfg.AuditFeedAddr != "" {
		run.wsServer = ws.NewServer(ws.Config{
			Addr:     cfg.AuditFeedAddr,
			Token:    cfg.AuditFeedToken,
			Bus:      run.bus,
			Sessions: run.sessions,
			Catalog: func() []commands.CommandDescriptor {
				return run.registry.Catalog(cfg.CommandPrefix)
			},
		})
		if cfg.AuditFeedToken == "" {
			log.Warn().Msg("AUDIT_FEED_TOKEN not set, the feed only shows console activity")
		}
		if err := run.platform.Enable(domain.PlatformConsole, run.wsServer); err != nil {
			run.abort()
			return nil, err
		}
	}

	if run.discord != nil {
		rotator, err := statususecase.NewRotator(cfg.Statuses, cfg.StatusInterval, log.Logger.With().Str("component", "status").Logger())
		if err != nil {
			log.Warn().Err(err).Msg("status rotation disabled")
		} else {
			rotator.Set(domain.PlatformDiscord, run.discord)
			run.rotator = rotator
			run.wg.Add(1)
			go func() {
				defer run.wg.Done()
				select {
				case <-runtimeCtx.Done():
					return
				case <-run.discord.Ready():
				}
				if err := rotator.Start(runtimeCtx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("status rotation stopped")
					run.publisher.PublishError("status", err)
				}
			}()
		}
	}

	run.started = true
	log.Info().Str("prefix", cfg.CommandPrefix).Strs("commands", run.registry.Names()).Msg("bot started")
	return run, nil
}

// handleMessage es el punto de entrada común de todos los adapters.
func (r *Runtime) handleMessage(ctx context.Context, msg domain.Message) error {
	if r.discord != nil && msg.Platform == domain.PlatformDiscord && msg.AuthorID == r.discord.SelfID() {
		return nil
	}
	r.publisher.PublishMessage(msg)
	return r.dispatcher.Handle(ctx, msg)
}

func (r *Runtime) abort() {
	r.cancel()
	if r.platform != nil {
		r.platform.Shutdown()
	}
	if r.closer != nil {
		_ = r.closer.Close()
	}
}

func (r *Runtime) Stop() error {
	if r == nil || !r.started {
		return nil
	}
	r.cancel()
	r.platform.Shutdown()
	r.wg.Wait()
	r.bus.Close()
	r.started = false
	if r.closer != nil {
		if err := r.closer.Close(); err != nil {
			return err
		}
	}
	ev := log.Info()
	for outcome, n := range r.activity.Counts() {
		ev = ev.Uint64(outcome, n)
	}
	ev.Msg("bot stopped")
	return nil
}

func (r *Runtime) Bus() *events.Bus {
	if r == nil {
		return nil
	}
	return r.bus
}

func (r *Runtime) Sessions() domain.SessionFactory {
	if r == nil {
		return nil
	}
	return r.sessions
}

func (r *Runtime) Config() *config.Config {
	if r == nil {
		return nil
	}
	return r.cfg
}

// DispatchMessage inyecta un mensaje como si llegara de un adapter.
func (r *Runtime) DispatchMessage(ctx context.Context, msg domain.Message) error {
	if r == nil || r.dispatcher == nil {
		return fmt.Errorf("dispatcher unavailable")
	}
	if ctx == nil {
		ctx = r.ctx
	}
	return r.handleMessage(ctx, msg)
}
