package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/config"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/http_api"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/jobs"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/ledger"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/models"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/notificator"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/payments"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/provisioning"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/reconciler"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/repository"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "spnbot",
		Usage: "SPN VPN subscription bot: payment reconciliation and activation service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "provisioning-url", Aliases: []string{"v"}, Usage: "VPN provisioning API URL"},
			&cli.IntFlag{Name: "api-port", Aliases: []string{"a"}, Usage: "Webhook API port"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
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
	if c.IsSet("provisioning-url") {
		cfg.ProvisioningURL = c.String("provisioning-url")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}

	// Initialize database
	db, err := repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize provisioning client and notification sink
	provisioner := provisioning.New(cfg.ProvisioningURL, cfg.ProvisioningToken, log)
	notif, err := notificator.NewTelegramNotificator(log, cfg.TelegramBotToken)
	if err != nil {
		return fmt.Errorf("failed to initialize notificator: %v", err)
	}

	// Initialize payment providers
	cryptoPay := payments.NewCryptoPay(cfg.CryptoPayURL, cfg.CryptoPayToken, cfg.CryptoPayAsset, log)
	cardGate := payments.NewCardGate(cfg.CardGateURL, cfg.CardGateShopID, cfg.CardGateSecret, cfg.CardReturnURL, log)
	merchant := payments.NewMerchant(cfg.MerchantURL, cfg.MerchantID, cfg.MerchantSecret, log)

	// Create the reconciliation engine
	engine := reconciler.NewEngine(db, ledger.New(db, log), provisioner, notif, log, reconciler.Config{
		AccessGroupID:     cfg.AccessGroupID,
		ReferralBonusDays: cfg.ReferralBonusDays,
		LockLeaseSeconds:  cfg.LockLeaseSeconds,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start maintenance jobs
	scheduler := jobs.New(db, cfg.PendingTTL, log)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start maintenance jobs: %v", err)
	}
	defer scheduler.Stop()

	// Start one poller per provider
	for _, provider := range []models.PaymentProvider{cryptoPay, cardGate, merchant} {
		go payments.NewPoller(provider, db, engine, cfg.PollInterval, log).Run(ctx)
	}

	// Start the webhook API server
	apiServer := http_api.NewHTTPServer(engine, merchant, cfg.APIPort, log)
	go apiServer.Start()

	<-ctx.Done()
	return apiServer.Shutdown()
}
