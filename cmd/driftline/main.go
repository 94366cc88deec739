package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	migrationsdb "github.com/driftlinehq/driftline/db"
	"github.com/driftlinehq/driftline/internal/auth"
	"github.com/driftlinehq/driftline/internal/config"
	"github.com/driftlinehq/driftline/internal/customers"
	"github.com/driftlinehq/driftline/internal/db"
	"github.com/driftlinehq/driftline/internal/engine"
	"github.com/driftlinehq/driftline/internal/handlers"
	"github.com/driftlinehq/driftline/internal/logger"
	"github.com/driftlinehq/driftline/internal/notify"
	"github.com/driftlinehq/driftline/internal/realtime"
	"github.com/driftlinehq/driftline/internal/reply"
	"github.com/driftlinehq/driftline/internal/rooms"
	"github.com/driftlinehq/driftline/internal/server"
	"github.com/driftlinehq/driftline/internal/tenants"
	"github.com/driftlinehq/driftline/internal/transcript"
	"github.com/driftlinehq/driftline/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe()
		case "migrate":
			runMigrate(os.Args[2:])
		case "token":
			runToken(os.Args[2:])
		case "version":
			fmt.Printf("Driftline %s\n", version.GetInfo())
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s (use: serve, migrate, token, version)\n", os.Args[1])
			os.Exit(1)
		}
		return
	}
	runServe()
}

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,

			tenants.NewService,
			rooms.NewService,
			transcript.NewService,
			customers.NewService,

			realtime.NewHub,
			provideBroadcaster,
			provideSender,
			provideGenerator,
			provideEngine,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewChatHandler),
			provideServerHandler(handlers.NewTranscriptHandler),
			provideServerHandler(handlers.NewRoomHandler),
			provideServerHandler(handlers.NewStreamHandler),
			provideServerHandler(handlers.NewTenantHandler),
			provideServerHandler(handlers.NewCustomerHandler),

			provideServer,
		),
		fx.Invoke(
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func runMigrate(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: driftline migrate <up|down|version|force N>")
		os.Exit(1)
	}

	cfg, err := provideConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := provideLogger(cfg)

	source, err := fs.Sub(migrationsdb.MigrationsFS, "migrations")
	if err != nil {
		log.Error("migrations fs", slog.Any("error", err))
		os.Exit(1)
	}
	if err := db.RunMigrate(log, cfg.Postgres, source, args[0], args[1:]); err != nil {
		log.Error("migrate failed", slog.String("command", args[0]), slog.Any("error", err))
		os.Exit(1)
	}
}

// runToken mints an operator JWT for the console endpoints.
func runToken(args []string) {
	flags := flag.NewFlagSet("token", flag.ExitOnError)
	tenantID := flags.String("tenant", "", "tenant id the token is bound to")
	ttl := flags.Duration("ttl", 0, "token lifetime (defaults to auth.jwt_expires_in)")
	if err := flags.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := provideConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	expiresIn := *ttl
	if expiresIn <= 0 {
		expiresIn, err = time.ParseDuration(cfg.Auth.JWTExpiresIn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "parse jwt_expires_in: %v\n", err)
			os.Exit(1)
		}
	}

	signed, expiresAt, err := auth.GenerateToken(*tenantID, cfg.Auth.JWTSecret, expiresIn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s\nexpires at %s\n", signed, expiresAt.Format(time.RFC3339))
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

// provideBroadcaster selects the fan-out driver. The in-process hub always
// exists for websocket subscribers; the AMQP driver additionally publishes
// every event to a topic exchange for external consumers.
func provideBroadcaster(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, hub *realtime.Hub) (realtime.Broadcaster, error) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			hub.Close()
			return nil
		},
	})

	if cfg.Realtime.Driver != "amqp" {
		return hub, nil
	}

	publisher, err := realtime.NewAMQPPublisher(log, cfg.Realtime.AMQPURL, cfg.Realtime.Exchange)
	if err != nil {
		return nil, fmt.Errorf("amqp publisher: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return fanoutBroadcaster{hub, publisher}, nil
}

// fanoutBroadcaster feeds local websocket subscribers and the AMQP exchange
// from one publish call.
type fanoutBroadcaster struct {
	hub       *realtime.Hub
	publisher *realtime.AMQPPublisher
}

func (f fanoutBroadcaster) Publish(roomID string, event realtime.Envelope) {
	f.hub.Publish(roomID, event)
	f.publisher.Publish(roomID, event)
}

func provideSender(log *slog.Logger, cfg config.Config) (notify.Sender, error) {
	switch cfg.Notify.Provider {
	case "mailgun":
		return notify.NewMailgunSender(log, cfg.Notify.MailgunDomain, cfg.Notify.MailgunAPIKey, cfg.Notify.MailgunRegion)
	default:
		return notify.NewSMTPSender(log, cfg.Notify.SMTPHost, cfg.Notify.SMTPPort,
			cfg.Notify.SMTPUsername, cfg.Notify.SMTPPassword, cfg.Notify.FromAddress)
	}
}

func provideGenerator(log *slog.Logger, cfg config.Config) (*reply.Client, error) {
	timeout := time.Duration(cfg.Model.TimeoutSeconds) * time.Second
	return reply.NewClient(log, cfg.Model.BaseURL, cfg.Model.APIKey, cfg.Model.ModelID, timeout)
}

func provideEngine(
	log *slog.Logger,
	roomService *rooms.Service,
	transcriptService *transcript.Service,
	customerService *customers.Service,
	tenantService *tenants.Service,
	client *reply.Client,
	broadcaster realtime.Broadcaster,
	sender notify.Sender,
) *engine.Service {
	return engine.NewService(log, roomService, transcriptService, customerService, tenantService, client, broadcaster, sender)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.ServerHandlers...)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func startServer(
	lc fx.Lifecycle,
	logger *slog.Logger,
	srv *server.Server,
	shutdowner fx.Shutdowner,
) {
	fmt.Printf("Starting Driftline %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil { // block until server is stopped
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown() // shutdown the application if the server fails to start
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// graceful shutdown
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
