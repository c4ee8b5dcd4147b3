package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/core-coin/salarium/internal/config"
	"github.com/core-coin/salarium/internal/http_api"
	"github.com/core-coin/salarium/internal/ledger"
	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/internal/notificator"
	"github.com/core-coin/salarium/internal/rates"
	"github.com/core-coin/salarium/internal/repository"
	"github.com/core-coin/salarium/internal/salarium"
	"github.com/core-coin/salarium/internal/timeseries"
	"github.com/core-coin/salarium/pkg/logger"
	"github.com/core-coin/salarium/pkg/messaging"
	"github.com/core-coin/salarium/pkg/secret"
)

func main() {
	app := &cli.App{
		Name:  "salarium",
		Usage: "Salarium is a multi-tenant payroll service settling on the XRP Ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "timeseries-url", Usage: "Time-series database URL"},
			&cli.StringFlag{Name: "ledger-rpc-url", Aliases: []string{"l"}, Usage: "Ledger JSON-RPC URL"},
			&cli.IntFlag{Name: "api-port", Usage: "HTTP API port"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the API and run the rate sampler and the payment reconciler",
				Action: serve,
			},
			{
				Name:   "reconcile",
				Usage:  "Run one reconciliation pass and print the report",
				Action: reconcile,
				Flags:  []cli.Flag{
					&cli.StringFlag{Name: "organization", Usage: "Reconcile one organization only"},
				},
			},
			{
				Name:      "verify-hash",
				Usage:     "Verify the audit hash of payment requests",
				ArgsUsage: "<request-id>...",
				Action:    verifyHash,
			},
		},
		Action: serve,
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("timeseries-url") {
		cfg.TimeseriesURL = c.String("timeseries-url")
	}
	if c.IsSet("ledger-rpc-url") {
		cfg.LedgerRPCURL = c.String("ledger-rpc-url")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	return cfg, cfg.Validate()
}

// stack is the wired service with everything it holds open.
type stack struct {
	cfg      *config.Config
	log      *logger.Logger
	service  *salarium.Salarium
	resolver *rates.Resolver
	closers  []func()
}

func (s *stack) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	_ = s.log.Sync()
}

func build(ctx context.Context, c *cli.Context) (*stack, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %v", err)
	}
	st := &stack{cfg: cfg, log: log}
	fail := func(err error) (*stack, error) {
		st.close()
		return nil, err
	}

	// Relational store
	db, err := repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	if err != nil {
		return fail(fmt.Errorf("failed to connect to database: %v", err))
	}
	st.closers = append(st.closers, func() { _ = db.Close() })

	// Time-series store
	pool, err := timeseries.NewPool(ctx, cfg.TimeseriesURL, cfg.TimeseriesMaxConns)
	if err != nil {
		return fail(fmt.Errorf("failed to connect to time-series database: %v", err))
	}
	work := timeseries.New(pool, log)
	st.closers = append(st.closers, work.Close)
	if err := work.EnsureSchema(ctx); err != nil {
		return fail(fmt.Errorf("failed to prepare time-series schema: %v", err))
	}

	// Rate cache is optional
	var cache rates.Cache
	if cfg.RedisURL != "" {
		redisCache, err := rates.NewRedisCache(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("failed to configure redis: %v", err))
		}
		st.closers = append(st.closers, func() { _ = redisCache.Close() })
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("Redis unreachable, rates will not be cached", "error", err)
		} else {
			cache = redisCache
		}
	}
	st.resolver = rates.NewResolver(log, cfg, db, cache, db)

	// Ledger
	rpc := ledger.NewRPCClient(cfg.LedgerRPCURL, cfg.LedgerTimeout, log)
	st.closers = append(st.closers, func() { _ = rpc.Close() })
	gateway := ledger.NewGateway(rpc, ledger.WalletSigner{}, ledger.GatewayConfig{
		Timeout:         cfg.LedgerTimeout,
		PollInterval:    cfg.LedgerPollInterval,
		MaxLedgerOffset: cfg.LedgerMaxLedgerOffset,
	}, log)

	cipher, err := secret.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return fail(fmt.Errorf("invalid encryption key: %v", err))
	}

	var events models.EventPublisher = messaging.Nop{}
	if cfg.NatsURL != "" {
		publisher, err := messaging.NewPublisher(messaging.Config{
			URL:           cfg.NatsURL,
			Name:          "salarium-" + cfg.InstanceID,
			ReconnectWait: 2 * time.Second,
			MaxReconnects: -1,
			Timeout:       5 * time.Second,
		}, log)
		if err != nil {
			return fail(err)
		}
		st.closers = append(st.closers, publisher.Close)
		events = publisher
	}

	st.service = salarium.NewSalarium(db, work, st.resolver, gateway, cipher, buildNotificator(ctx, cfg, log),
		events, log, cfg)
	return st, nil
}

func buildNotificator(ctx context.Context, cfg *config.Config, log *logger.Logger) models.NotificationService {
	var telegram *notificator.TelegramNotificator
	if cfg.TelegramBotToken != "" {
		var err error
		if telegram, err = notificator.NewTelegramNotificator(ctx, log, cfg.TelegramBotToken); err != nil {
			log.Warn("Telegram notifications disabled", "error", err)
		}
	}
	var email *notificator.EmailNotificator
	if cfg.SMTPHost != "" {
		email = notificator.NewEmailNotificator(log, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPSender)
	}
	if telegram == nil && email == nil {
		return notificator.Nop{}
	}
	return notificator.NewNotificator(log, cfg.TelegramAdminChatID, telegram, email)
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := build(ctx, c)
	if err != nil {
		return err
	}
	defer st.close()

	apiServer := http_api.NewHTTPServer(st.service, st.cfg.APIPort, st.cfg.JWTSecret, st.log)

	st.resolver.StartSampler(st.cfg.RateSampleInterval)
	defer st.resolver.Stop()
	st.service.StartReconciler(st.cfg.ReconcileInterval)
	defer st.service.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(apiServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		return apiServer.Shutdown()
	})

	st.log.Info("Salarium started", "instance_id", st.cfg.InstanceID, "port", st.cfg.APIPort)
	return g.Wait()
}

func reconcile(c *cli.Context) error {
	st, err := build(c.Context, c)
	if err != nil {
		return err
	}
	defer st.close()

	report, err := st.service.ReconcilePayments(c.Context, c.String("organization"))
	if err != nil {
		return err
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Completed", "Failed", "Still pending", "Repaired", "Stuck"})
	tw.AppendRow(table.Row{report.Completed, report.Failed, report.StillPending, report.Repaired, report.Stuck})
	tw.Render()
	for _, e := range report.Errors {
		fmt.Fprintln(os.Stderr, e)
	}
	if len(report.Errors) > 0 {
		return cli.Exit("reconciliation finished with errors", 1)
	}
	return nil
}

func verifyHash(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("at least one payment request id is required", 2)
	}
	st, err := build(c.Context, c)
	if err != nil {
		return err
	}
	defer st.close()

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Request", "Data hash", "Valid", "Verified at"})
	mismatches := 0
	for _, id := range c.Args().Slice() {
		result, err := st.service.VerifyPaymentHash(c.Context, id)
		if result == nil {
			tw.AppendRow(table.Row{id, "", "error: " + err.Error(), ""})
			mismatches++
			continue
		}
		if !result.Valid {
			mismatches++
		}
		tw.AppendRow(table.Row{result.RequestID, result.DataHash, strconv.FormatBool(result.Valid),
			result.VerifiedAt.Format(time.RFC3339)})
	}
	tw.Render()
	if mismatches > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d requests failed verification", mismatches, c.NArg()), 1)
	}
	return nil
}
