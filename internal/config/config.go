// Package config defines the top-level configuration for polystrat and
// provides validation helpers.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Operating modes.
const (
	ModePaper   = "paper"
	ModeLive    = "live"
	ModeReport  = "report"
	ModeArchive = "archive"
)

// Record store backends.
const (
	StoreNone     = "none"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Strategy names as used in the strategies list.
const (
	StrategyArbitrage = "arbitrage"
	StrategyCrash     = "crash"
	StrategySniper    = "sniper"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYSTRAT_* environment variables.
type Config struct {
	Mode       string           `toml:"mode"`
	Strategies []string         `toml:"strategies"`
	Log        LogConfig        `toml:"log"`
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	ESPN       ESPNConfig       `toml:"espn"`
	Executor   ExecutorConfig   `toml:"executor"`
	Store      StoreConfig      `toml:"store"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Arbitrage  ArbitrageConfig  `toml:"arbitrage"`
	Crash      CrashConfig      `toml:"crash"`
	Sniper     SniperConfig     `toml:"sniper"`
}

// LogConfig controls the slog handler. File enables rotated file output in
// addition to stdout.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// WalletConfig holds Ethereum wallet credentials for live mode.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	// API credentials are derived from the key when left empty.
	APIKey        string `toml:"api_key"`
	APISecret     string `toml:"api_secret"`
	APIPassphrase string `toml:"api_passphrase"`
}

// PolymarketConfig holds venue endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
	WsHost    string `toml:"ws_host"`
	ChainID   int    `toml:"chain_id"`
	NegRisk   bool   `toml:"neg_risk"`
	// Stream serves crash-strategy books from the market websocket.
	Stream         bool     `toml:"stream"`
	StreamMaxAge   Duration `toml:"stream_max_age"`
	StaleListings  Duration `toml:"stale_listings"`
	GammaRate      float64  `toml:"gamma_rate"`
	GammaBurst     int      `toml:"gamma_burst"`
	ClobRate       float64  `toml:"clob_rate"`
	ClobBurst      int      `toml:"clob_burst"`
	RequestTimeout Duration `toml:"request_timeout"`
}

// ESPNConfig points the sports results client.
type ESPNConfig struct {
	BaseURL string `toml:"base_url"`
}

// ExecutorConfig holds the order guard applied in front of every gateway.
type ExecutorConfig struct {
	MaxOrderValue float64  `toml:"max_order_value"`
	DedupTTL      Duration `toml:"dedup_ttl"`
}

// StoreConfig selects where trade, decision, snapshot and event records go.
type StoreConfig struct {
	Backend    string         `toml:"backend"`
	SQLitePath string         `toml:"sqlite_path"`
	Postgres   PostgresConfig `toml:"postgres"`
	Recorder   RecorderConfig `toml:"recorder"`
}

// PostgresConfig holds connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RecorderConfig tunes record batching.
type RecorderConfig struct {
	QueueSize     int      `toml:"queue_size"`
	FlushInterval Duration `toml:"flush_interval"`
	FlushAt       int      `toml:"flush_at"`
	BatchSize     int      `toml:"batch_size"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when
// disabled no cross-process lock, signal relay or state cache is wired.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	StateTTL   Duration `toml:"state_ttl"`
	Lock       bool     `toml:"lock"`
}

// S3Config holds S3-compatible object storage parameters for archive mode.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the dashboard HTTP surface.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RatePerSec  float64  `toml:"rate_per_sec"`
	RateBurst   int      `toml:"rate_burst"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf(":%d", s.Port) }

// NotifyConfig holds alert destinations.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// LoopConfig holds the knobs every strategy loop shares.
type LoopConfig struct {
	StartingCapital   float64  `toml:"starting_capital"`
	PollInterval      Duration `toml:"poll_interval"`
	ErrorBackoff      int      `toml:"error_backoff"`
	MaxPositions      int      `toml:"max_positions"`
	MinCash           float64  `toml:"min_cash"`
	MaxDailyLoss      float64  `toml:"max_daily_loss"`
	SnapshotInterval  Duration `toml:"snapshot_interval"`
	BroadcastInterval Duration `toml:"broadcast_interval"`
}

// TierConfig is one arbitrage sizing tier.
type TierConfig struct {
	MinEdge float64 `toml:"min_edge"`
	MaxSize float64 `toml:"max_size"`
}

// ArbitrageConfig holds the cross-outcome arbitrage parameters.
type ArbitrageConfig struct {
	LoopConfig
	MinEdge            float64      `toml:"min_edge"`
	Slippage           float64      `toml:"slippage"`
	Tiers              []TierConfig `toml:"tiers"`
	MinLiquidity       float64      `toml:"min_liquidity"`
	LiquidityFraction  float64      `toml:"liquidity_fraction"`
	SettlementInterval Duration     `toml:"settlement_interval"`
	MarketLimit        int          `toml:"market_limit"`
	ExcludedPatterns   []string     `toml:"excluded_patterns"`
}

// CrashConfig holds the crash-reversion parameters.
type CrashConfig struct {
	LoopConfig
	Assets             []string `toml:"assets"`
	MarketWindow       Duration `toml:"market_window"`
	Lookback           Duration `toml:"lookback"`
	NoBuyWindow        Duration `toml:"no_buy_window"`
	CrashPrice         float64  `toml:"crash_price"`
	RecentHighMin      float64  `toml:"recent_high_min"`
	MinDrop            float64  `toml:"min_drop"`
	ProfitTarget       float64  `toml:"profit_target"`
	StopLoss           float64  `toml:"stop_loss"`
	ForceExitWindow    Duration `toml:"force_exit_window"`
	MaxPositionSize    float64  `toml:"max_position_size"`
	StabilizationTicks int      `toml:"stabilization_ticks"`
	RequireBounce      bool     `toml:"require_bounce"`
	MinBounce          float64  `toml:"min_bounce"`
	Cooldown           Duration `toml:"cooldown"`
}

// SniperConfig holds the settlement sniper parameters.
type SniperConfig struct {
	LoopConfig
	Leagues            []string `toml:"leagues"`
	GameScanInterval   Duration `toml:"game_scan_interval"`
	MarketScanInterval Duration `toml:"market_scan_interval"`
	SettlementInterval Duration `toml:"settlement_interval"`
	MarketTag          string   `toml:"market_tag"`
	MarketLimit        int      `toml:"market_limit"`
	MinMargin          int      `toml:"min_margin"`
	MinConfidence      float64  `toml:"min_confidence"`
	MinPrice           float64  `toml:"min_price"`
	MaxPrice           float64  `toml:"max_price"`
	BidPrice           float64  `toml:"bid_price"`
	OrderSize          float64  `toml:"order_size"`
	MaxPerMarket       float64  `toml:"max_per_market"`
	MaxTotalExposure   float64  `toml:"max_total_exposure"`
}

// Duration decodes TOML strings such as "5s" or "2m30s".
type Duration struct {
	time.Duration
}

// D is shorthand for building a Duration.
func D(d time.Duration) Duration { return Duration{d} }

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the configuration used when a key is absent from the file.
// Strategy values match the evaluators' production parameters.
func Defaults() Config {
	return Config{
		Mode:       ModePaper,
		Strategies: []string{StrategyArbitrage},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Polymarket: PolymarketConfig{
			ClobHost:       "https://clob.polymarket.com",
			GammaHost:      "https://gamma-api.polymarket.com",
			WsHost:         "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:        137,
			Stream:         true,
			StreamMaxAge:   D(5 * time.Second),
			StaleListings:  D(2 * time.Minute),
			RequestTimeout: D(30 * time.Second),
		},
		ESPN: ESPNConfig{
			BaseURL: "https://site.api.espn.com/apis/site/v2/sports",
		},
		Executor: ExecutorConfig{
			MaxOrderValue: 1000,
			DedupTTL:      D(2 * time.Second),
		},
		Store: StoreConfig{
			Backend:    StoreSQLite,
			SQLitePath: "polystrat.db",
			Postgres: PostgresConfig{
				Host:          "localhost",
				Port:          5432,
				Database:      "postgres",
				User:          "postgres",
				SSLMode:       "disable",
				PoolMaxConns:  10,
				PoolMinConns:  2,
				RunMigrations: true,
			},
			Recorder: RecorderConfig{
				QueueSize:     1000,
				FlushInterval: D(5 * time.Second),
				FlushAt:       100,
				BatchSize:     50,
			},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			StateTTL:   D(10 * time.Minute),
			Lock:       true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polystrat-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RatePerSec:  10,
			RateBurst:   20,
		},
		Notify: NotifyConfig{
			Events: []string{"trade_open", "trade_close", "trade_settle", "error", "alert"},
		},
		Arbitrage: ArbitrageConfig{
			LoopConfig: LoopConfig{
				StartingCapital: 1000,
				PollInterval:    D(5 * time.Second),
				ErrorBackoff:    3,
				MaxPositions:    5,
				MinCash:         50,
			},
			MinEdge:  0.01,
			Slippage: 0.001,
			Tiers: []TierConfig{
				{MinEdge: 0.01, MaxSize: 50},
				{MinEdge: 0.02, MaxSize: 200},
				{MinEdge: 0.03, MaxSize: 400},
				{MinEdge: 0.04, MaxSize: 600},
				{MinEdge: 0.05, MaxSize: 1000},
			},
			MinLiquidity:       50,
			LiquidityFraction:  0.8,
			SettlementInterval: D(30 * time.Second),
			MarketLimit:        500,
			ExcludedPatterns:   []string{"-updown-15m-", "-updown-5m-", "-updown-1m-"},
		},
		Crash: CrashConfig{
			LoopConfig: LoopConfig{
				StartingCapital: 1000,
				PollInterval:    D(time.Second),
				ErrorBackoff:    3,
				MaxPositions:    3,
				MinCash:         50,
			},
			Assets:             []string{"btc", "eth", "sol", "xrp"},
			MarketWindow:       D(15 * time.Minute),
			Lookback:           D(120 * time.Second),
			NoBuyWindow:        D(180 * time.Second),
			CrashPrice:         0.20,
			RecentHighMin:      0.35,
			MinDrop:            0.40,
			ProfitTarget:       0.50,
			StopLoss:           0.30,
			ForceExitWindow:    D(60 * time.Second),
			MaxPositionSize:    50,
			StabilizationTicks: 3,
			RequireBounce:      true,
			MinBounce:          0.10,
			Cooldown:           D(120 * time.Second),
		},
		Sniper: SniperConfig{
			LoopConfig: LoopConfig{
				StartingCapital: 2000,
				PollInterval:    D(5 * time.Second),
				ErrorBackoff:    3,
				MaxPositions:    20,
				MinCash:         100,
			},
			Leagues:            []string{"NBA", "NFL"},
			GameScanInterval:   D(30 * time.Second),
			MarketScanInterval: D(10 * time.Second),
			SettlementInterval: D(30 * time.Second),
			MarketTag:          "sports",
			MarketLimit:        500,
			MinMargin:          5,
			MinConfidence:      0.85,
			MinPrice:           0.90,
			MaxPrice:           0.97,
			BidPrice:           0.96,
			OrderSize:          100,
			MaxPerMarket:       500,
			MaxTotalExposure:   2000,
		},
	}
}

var validModes = map[string]bool{
	ModePaper:   true,
	ModeLive:    true,
	ModeReport:  true,
	ModeArchive: true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validStrategies = map[string]bool{
	StrategyArbitrage: true,
	StrategyCrash:     true,
	StrategySniper:    true,
}

var validBackends = map[string]bool{
	StoreNone:     true,
	StoreSQLite:   true,
	StorePostgres: true,
}

// Runs reports whether name is in the strategies list.
func (c *Config) Runs(name string) bool {
	for _, s := range c.Strategies {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		add("unknown mode %q (valid: paper, live, report, archive)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		add("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level)
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		add("log: format must be json or text, got %q", c.Log.Format)
	}

	if mode == ModePaper || mode == ModeLive {
		if len(c.Strategies) == 0 {
			add("strategies: at least one strategy must be listed for mode %s", mode)
		}
		seen := make(map[string]bool)
		for _, s := range c.Strategies {
			name := strings.ToLower(s)
			if !validStrategies[name] {
				add("strategies: unknown strategy %q (valid: arbitrage, crash, sniper)", s)
			}
			if seen[name] {
				add("strategies: %q listed twice", s)
			}
			seen[name] = true
		}
	}

	if mode == ModeLive {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			add("wallet: either private_key or encrypted_key_path must be set for mode live")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			add("wallet: key_password is required when encrypted_key_path is set")
		}
		k, s, p := c.Wallet.APIKey != "", c.Wallet.APISecret != "", c.Wallet.APIPassphrase != ""
		if (k || s || p) && !(k && s && p) {
			add("wallet: api_key, api_secret and api_passphrase must all be set together")
		}
		if c.Polymarket.ClobHost == "" {
			add("polymarket: clob_host must not be empty")
		}
		if c.Polymarket.ChainID <= 0 {
			add("polymarket: chain_id must be positive")
		}
		if c.Executor.MaxOrderValue <= 0 {
			add("executor: max_order_value must be > 0 in live mode")
		}
	}

	backend := strings.ToLower(c.Store.Backend)
	if !validBackends[backend] {
		add("store: unknown backend %q (valid: none, sqlite, postgres)", c.Store.Backend)
	}
	if (mode == ModeReport || mode == ModeArchive) && backend == StoreNone {
		add("store: mode %s needs a record store", mode)
	}
	switch backend {
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			add("store: sqlite_path must not be empty")
		}
	case StorePostgres:
		pg := c.Store.Postgres
		if strings.TrimSpace(pg.DSN) == "" {
			if pg.Host == "" {
				add("store.postgres: host must not be empty (or set dsn)")
			}
			if pg.Port <= 0 || pg.Port > 65535 {
				add("store.postgres: port must be 1-65535, got %d", pg.Port)
			}
			if pg.Database == "" {
				add("store.postgres: database must not be empty")
			}
		}
		if pg.PoolMaxConns < 1 {
			add("store.postgres: pool_max_conns must be >= 1")
		}
		if pg.PoolMinConns < 0 || pg.PoolMinConns > pg.PoolMaxConns {
			add("store.postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	if mode == ModeArchive {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			add("s3: region must not be empty")
		}
	}

	if c.Server.Enabled && (mode == ModePaper || mode == ModeLive) {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
	}

	if c.Runs(StrategyArbitrage) {
		errs = append(errs, c.Arbitrage.validate()...)
	}
	if c.Runs(StrategyCrash) {
		errs = append(errs, c.Crash.validate()...)
	}
	if c.Runs(StrategySniper) {
		errs = append(errs, c.Sniper.validate()...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}
	return nil
}

func (l LoopConfig) validate(section string) []error {
	var errs []error
	if l.StartingCapital <= 0 {
		errs = append(errs, fmt.Errorf("%s: starting_capital must be > 0", section))
	}
	if l.PollInterval.Duration <= 0 {
		errs = append(errs, fmt.Errorf("%s: poll_interval must be > 0", section))
	}
	if l.MaxPositions < 1 {
		errs = append(errs, fmt.Errorf("%s: max_positions must be >= 1", section))
	}
	if l.MinCash < 0 || l.MinCash >= l.StartingCapital {
		errs = append(errs, fmt.Errorf("%s: min_cash must be in [0, starting_capital)", section))
	}
	if l.MaxDailyLoss < 0 {
		errs = append(errs, fmt.Errorf("%s: max_daily_loss must be >= 0", section))
	}
	return errs
}

func (a ArbitrageConfig) validate() []error {
	errs := a.LoopConfig.validate("arbitrage")
	if a.MinEdge <= 0 {
		errs = append(errs, errors.New("arbitrage: min_edge must be > 0"))
	}
	if len(a.Tiers) == 0 {
		errs = append(errs, errors.New("arbitrage: at least one tier is required"))
	}
	for i := 1; i < len(a.Tiers); i++ {
		if a.Tiers[i].MinEdge <= a.Tiers[i-1].MinEdge {
			errs = append(errs, errors.New("arbitrage: tiers must be ascending by min_edge"))
			break
		}
	}
	if a.LiquidityFraction <= 0 || a.LiquidityFraction > 1 {
		errs = append(errs, errors.New("arbitrage: liquidity_fraction must be in (0, 1]"))
	}
	return errs
}

func (c CrashConfig) validate() []error {
	errs := c.LoopConfig.validate("crash")
	if len(c.Assets) == 0 {
		errs = append(errs, errors.New("crash: assets must not be empty"))
	}
	if c.CrashPrice <= 0 || c.CrashPrice >= 1 {
		errs = append(errs, errors.New("crash: crash_price must be in (0, 1)"))
	}
	if c.MinDrop <= 0 || c.MinDrop >= 1 {
		errs = append(errs, errors.New("crash: min_drop must be in (0, 1)"))
	}
	if c.ProfitTarget <= 0 || c.StopLoss <= 0 || c.StopLoss >= 1 {
		errs = append(errs, errors.New("crash: profit_target must be > 0 and stop_loss in (0, 1)"))
	}
	if c.StabilizationTicks < 1 {
		errs = append(errs, errors.New("crash: stabilization_ticks must be >= 1"))
	}
	return errs
}

func (s SniperConfig) validate() []error {
	errs := s.LoopConfig.validate("sniper")
	if len(s.Leagues) == 0 {
		errs = append(errs, errors.New("sniper: leagues must not be empty"))
	}
	if s.MinPrice <= 0 || s.MaxPrice >= 1 || s.MinPrice > s.MaxPrice {
		errs = append(errs, errors.New("sniper: need 0 < min_price <= max_price < 1"))
	}
	if s.BidPrice <= 0 || s.BidPrice >= 1 {
		errs = append(errs, errors.New("sniper: bid_price must be in (0, 1)"))
	}
	if s.MinConfidence <= 0 || s.MinConfidence > 1 {
		errs = append(errs, errors.New("sniper: min_confidence must be in (0, 1]"))
	}
	if s.OrderSize <= 0 || s.MaxPerMarket < s.OrderSize || s.MaxTotalExposure < s.MaxPerMarket {
		errs = append(errs, errors.New("sniper: need 0 < order_size <= max_per_market <= max_total_exposure"))
	}
	return errs
}
