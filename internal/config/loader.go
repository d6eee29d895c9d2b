package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYSTRAT_* environment variable overrides, and
// returns the final Config. A missing file is not an error: the defaults
// plus environment are used. Unknown keys are. The returned Config has NOT
// been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				sort.Strings(keys)
				return nil, fmt.Errorf("config: %s: unknown keys: %s", path, strings.Join(keys, ", "))
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYSTRAT_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "POLYSTRAT_MODE")
	setStringSlice(&cfg.Strategies, "POLYSTRAT_STRATEGIES")

	// ── Log ──
	setStr(&cfg.Log.Level, "POLYSTRAT_LOG_LEVEL")
	setStr(&cfg.Log.Format, "POLYSTRAT_LOG_FORMAT")
	setStr(&cfg.Log.File, "POLYSTRAT_LOG_FILE")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYSTRAT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYSTRAT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYSTRAT_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.APIKey, "POLYSTRAT_WALLET_API_KEY")
	setStr(&cfg.Wallet.APISecret, "POLYSTRAT_WALLET_API_SECRET")
	setStr(&cfg.Wallet.APIPassphrase, "POLYSTRAT_WALLET_API_PASSPHRASE")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYSTRAT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYSTRAT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYSTRAT_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "POLYSTRAT_POLYMARKET_CHAIN_ID")
	setBool(&cfg.Polymarket.NegRisk, "POLYSTRAT_POLYMARKET_NEG_RISK")
	setBool(&cfg.Polymarket.Stream, "POLYSTRAT_POLYMARKET_STREAM")

	// ── ESPN ──
	setStr(&cfg.ESPN.BaseURL, "POLYSTRAT_ESPN_BASE_URL")

	// ── Executor ──
	setFloat64(&cfg.Executor.MaxOrderValue, "POLYSTRAT_EXECUTOR_MAX_ORDER_VALUE")
	setDuration(&cfg.Executor.DedupTTL, "POLYSTRAT_EXECUTOR_DEDUP_TTL")

	// ── Store ──
	setStr(&cfg.Store.Backend, "POLYSTRAT_STORE_BACKEND")
	setStr(&cfg.Store.SQLitePath, "POLYSTRAT_STORE_SQLITE_PATH")
	setStr(&cfg.Store.Postgres.DSN, "POLYSTRAT_STORE_POSTGRES_DSN")
	setStr(&cfg.Store.Postgres.DSN, "POLYSTRAT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Store.Postgres.Host, "POLYSTRAT_STORE_POSTGRES_HOST")
	setInt(&cfg.Store.Postgres.Port, "POLYSTRAT_STORE_POSTGRES_PORT")
	setStr(&cfg.Store.Postgres.Database, "POLYSTRAT_STORE_POSTGRES_DATABASE")
	setStr(&cfg.Store.Postgres.User, "POLYSTRAT_STORE_POSTGRES_USER")
	setStr(&cfg.Store.Postgres.Password, "POLYSTRAT_STORE_POSTGRES_PASSWORD")
	setStr(&cfg.Store.Postgres.SSLMode, "POLYSTRAT_STORE_POSTGRES_SSL_MODE")
	setBool(&cfg.Store.Postgres.RunMigrations, "POLYSTRAT_STORE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYSTRAT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYSTRAT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYSTRAT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYSTRAT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "POLYSTRAT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POLYSTRAT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYSTRAT_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYSTRAT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYSTRAT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYSTRAT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYSTRAT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYSTRAT_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYSTRAT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYSTRAT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYSTRAT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POLYSTRAT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYSTRAT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYSTRAT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYSTRAT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYSTRAT_NOTIFY_EVENTS")

	// ── Strategies ──
	setLoop(&cfg.Arbitrage.LoopConfig, "POLYSTRAT_ARBITRAGE")
	setFloat64(&cfg.Arbitrage.MinEdge, "POLYSTRAT_ARBITRAGE_MIN_EDGE")
	setLoop(&cfg.Crash.LoopConfig, "POLYSTRAT_CRASH")
	setStringSlice(&cfg.Crash.Assets, "POLYSTRAT_CRASH_ASSETS")
	setLoop(&cfg.Sniper.LoopConfig, "POLYSTRAT_SNIPER")
	setStringSlice(&cfg.Sniper.Leagues, "POLYSTRAT_SNIPER_LEAGUES")
}

func setLoop(l *LoopConfig, prefix string) {
	setFloat64(&l.StartingCapital, prefix+"_STARTING_CAPITAL")
	setDuration(&l.PollInterval, prefix+"_POLL_INTERVAL")
	setInt(&l.MaxPositions, prefix+"_MAX_POSITIONS")
	setFloat64(&l.MinCash, prefix+"_MIN_CASH")
	setFloat64(&l.MaxDailyLoss, prefix+"_MAX_DAILY_LOSS")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and parses.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
