package app

import (
	"log/slog"

	"github.com/normoes/xmrto-wrapper/internal/infra"
	"github.com/normoes/xmrto-wrapper/internal/infra/storage"
	"github.com/normoes/xmrto-wrapper/internal/infra/xmrto"
	"github.com/normoes/xmrto-wrapper/internal/service"
)

// Options carry the command line overrides applied on top of the
// loaded configuration. Flags beat environment variables, environment
// variables beat the config file.
type Options struct {
	ConfigPath string
	URL        string
	APIVersion string
	Debug      bool
}

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config  *infra.Config
	Logger  *slog.Logger
	Client  *xmrto.Client
	Orders  *service.OrderService
	Prices  *service.PriceService
	Journal *storage.Journal
	QRCodes *infra.QRCodeWriter
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization: config, logger,
// journal, API client and the services on top of it.
func (b *Bootstrap) Initialize(opts Options) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(opts.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	if opts.URL != "" {
		cfg.API.URL = opts.URL
	}
	if opts.APIVersion != "" {
		cfg.API.Version = opts.APIVersion
	}
	if opts.Debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	b.Logger = logger

	// 3. Order journal (optional local bookkeeping of secret keys)
	var journal service.OrderJournal
	if cfg.Journal.Enabled {
		j, err := storage.NewJournal(cfg.Journal.Path)
		if err != nil {
			return err
		}
		b.Journal = j
		journal = j
		logger.Debug("order journal ready", "path", cfg.Journal.Path)
	}

	// 4. API client and services
	b.Client = xmrto.NewClient(cfg)
	follower := service.NewFollower(logger)
	b.Orders = service.NewOrderService(b.Client, follower, journal, logger)
	b.Prices = service.NewPriceService(b.Client, logger)

	qrWriter, err := infra.NewQRCodeWriter("")
	if err != nil {
		return err
	}
	b.QRCodes = qrWriter

	logger.Debug("bootstrap complete",
		"url", cfg.API.URL,
		"api_version", cfg.API.Version,
		"journal", cfg.Journal.Enabled,
	)
	return nil
}

// FollowOptions returns the tracking loop options derived from the
// resolved configuration.
func (b *Bootstrap) FollowOptions() service.FollowOptions {
	return service.FollowOptionsFromConfig(b.Config)
}
