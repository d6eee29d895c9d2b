package config

import "slices"

// Redacted returns a copy of c with secrets replaced by "***", safe to log.
// Slices are cloned so the copy cannot alias the original.
func (c *Config) Redacted() Config {
	out := *c

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)
	redact(&out.Wallet.APIKey)
	redact(&out.Wallet.APISecret)
	redact(&out.Wallet.APIPassphrase)

	redact(&out.Store.Postgres.DSN)
	redact(&out.Store.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Server.APIKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	out.Strategies = slices.Clone(c.Strategies)
	out.Server.CORSOrigins = slices.Clone(c.Server.CORSOrigins)
	out.Notify.Events = slices.Clone(c.Notify.Events)
	out.Arbitrage.Tiers = slices.Clone(c.Arbitrage.Tiers)
	out.Arbitrage.ExcludedPatterns = slices.Clone(c.Arbitrage.ExcludedPatterns)
	out.Crash.Assets = slices.Clone(c.Crash.Assets)
	out.Sniper.Leagues = slices.Clone(c.Sniper.Leagues)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
