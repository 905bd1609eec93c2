// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/bingo/internal/journal"
	"github.com/jason-s-yu/bingo/internal/lobby"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every flag name to form its environment variable, e.g.
// --redis-addr becomes BINGO_REDIS_ADDR.
const EnvPrefix = "BINGO"

// Logging is shared by both binaries.
type Logging struct {
	Level string
	JSON  bool
}

func (l *Logging) register(fs *pflag.FlagSet) {
	fs.StringVar(&l.Level, "log-level", "info", "log level: trace, debug, info, warn, error (env: BINGO_LOG_LEVEL)")
	fs.BoolVar(&l.JSON, "log-json", false, "log as JSON instead of text (env: BINGO_LOG_JSON)")
}

// NewLogger builds the process logger.
func (l Logging) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(level)
	if l.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// Redis locates the journal queue.
type Redis struct {
	Addr  string
	DB    int
	Queue string
}

func (r *Redis) register(fs *pflag.FlagSet) {
	fs.StringVar(&r.Addr, "redis-addr", "", "redis address for the event journal; empty disables it (env: BINGO_REDIS_ADDR)")
	fs.IntVar(&r.DB, "redis-db", 0, "redis database number (env: BINGO_REDIS_DB)")
	fs.StringVar(&r.Queue, "journal-queue", journal.DefaultQueueName, "redis list holding journal records (env: BINGO_JOURNAL_QUEUE)")
}

// Server configures bingo-server.
type Server struct {
	Logging
	Redis

	Bind           string
	Port           int
	AllowedOrigins []string
	PublicURL      string
	JournalBuffer  int

	AdminSecret   string
	AdminTokenTTL time.Duration

	LobbyIdleTimeout time.Duration
	SweepInterval    time.Duration
	WinRule          string
	MaxDeckSize      int
	MaxNameLength    int

	SendBuffer int
	RateLimit  float64
	RateBurst  int
}

// RegisterFlags adds the server flags to fs.
func (c *Server) RegisterFlags(fs *pflag.FlagSet) {
	c.Logging.register(fs)
	c.Redis.register(fs)

	fs.StringVarP(&c.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: BINGO_BIND)")
	fs.IntVarP(&c.Port, "port", "p", 8080, "port to listen on (env: BINGO_PORT)")
	fs.StringSliceVar(&c.AllowedOrigins, "allowed-origins", nil, "websocket origin patterns allowed besides same-origin (env: BINGO_ALLOWED_ORIGINS)")
	fs.StringVar(&c.PublicURL, "public-url", "", "base URL encoded in join QR codes; derived from the request when empty (env: BINGO_PUBLIC_URL)")
	fs.IntVar(&c.JournalBuffer, "journal-buffer", 256, "journal records buffered before dropping (env: BINGO_JOURNAL_BUFFER)")
	fs.StringVar(&c.AdminSecret, "admin-secret", "", "HS256 secret for admin tokens; empty disables admin routes (env: BINGO_ADMIN_SECRET)")
	fs.DurationVar(&c.AdminTokenTTL, "admin-token-ttl", 24*time.Hour, "lifetime of minted admin tokens, 0 for no expiry (env: BINGO_ADMIN_TOKEN_TTL)")
	fs.DurationVar(&c.LobbyIdleTimeout, "lobby-idle-timeout", 60*time.Minute, "time before idle lobbies are closed (env: BINGO_LOBBY_IDLE_TIMEOUT)")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", time.Minute, "how often idle lobbies are swept (env: BINGO_SWEEP_INTERVAL)")
	fs.StringVar(&c.WinRule, "win-rule", "blackout", "win rule: "+strings.Join(lobby.RuleNames(), ", ")+" (env: BINGO_WIN_RULE)")
	fs.IntVar(&c.MaxDeckSize, "max-deck-size", 256, "maximum cards per deck (env: BINGO_MAX_DECK_SIZE)")
	fs.IntVar(&c.MaxNameLength, "max-name-length", 32, "maximum player name length in characters (env: BINGO_MAX_NAME_LENGTH)")
	fs.IntVar(&c.SendBuffer, "send-buffer", 64, "outgoing frames buffered per connection (env: BINGO_SEND_BUFFER)")
	fs.Float64Var(&c.RateLimit, "rate-limit", 10, "requests per second per connection, 0 disables (env: BINGO_RATE_LIMIT)")
	fs.IntVar(&c.RateBurst, "rate-burst", 20, "request burst per connection (env: BINGO_RATE_BURST)")
}

// Validate rejects settings the server cannot run with.
func (c *Server) Validate() error {
	if err := validatePort(c.Port); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return err
	}
	if _, err := lobby.RuleByName(c.WinRule); err != nil {
		return err
	}
	for name, v := range map[string]int{
		"max-deck-size":   c.MaxDeckSize,
		"max-name-length": c.MaxNameLength,
		"send-buffer":     c.SendBuffer,
		"journal-buffer":  c.JournalBuffer,
	} {
		if v <= 0 {
			return fmt.Errorf("--%s must be positive, got %d", name, v)
		}
	}
	if c.LobbyIdleTimeout <= 0 || c.SweepInterval <= 0 {
		return errors.New("--lobby-idle-timeout and --sweep-interval must be positive")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("--rate-limit must not be negative, got %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return fmt.Errorf("--rate-burst must be positive when rate limiting, got %d", c.RateBurst)
	}
	if c.AdminTokenTTL < 0 {
		return errors.New("--admin-token-ttl must not be negative")
	}
	return nil
}

// ListenAddr is the HTTP listen address.
func (c *Server) ListenAddr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// Historian configures bingo-historian.
type Historian struct {
	Logging
	Redis

	PostgresURL   string
	BatchSize     int
	FlushInterval time.Duration
}

// RegisterFlags adds the historian flags to fs.
func (c *Historian) RegisterFlags(fs *pflag.FlagSet) {
	c.Logging.register(fs)
	c.Redis.register(fs)

	fs.StringVar(&c.PostgresURL, "postgres-url", "", "postgres connection string (env: BINGO_POSTGRES_URL)")
	fs.IntVar(&c.BatchSize, "batch-size", 100, "records written per transaction (env: BINGO_BATCH_SIZE)")
	fs.DurationVar(&c.FlushInterval, "flush-interval", 2*time.Second, "longest a partial batch waits (env: BINGO_FLUSH_INTERVAL)")
}

// Validate rejects settings the historian cannot run with.
func (c *Historian) Validate() error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return err
	}
	if c.Addr == "" {
		return errors.New("--redis-addr is required")
	}
	if c.PostgresURL == "" {
		return errors.New("--postgres-url is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("--batch-size must be positive, got %d", c.BatchSize)
	}
	if c.FlushInterval <= 0 {
		return errors.New("--flush-interval must be positive")
	}
	return nil
}

// BindEnv lets BINGO_* environment variables fill any flag not set on the command line.
// Call it after the flags are registered and parsed.
func BindEnv(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := fs.Set(f.Name, v.GetString(f.Name)); err != nil {
			errs = append(errs, fmt.Errorf("env for --%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", port)
	}
	return nil
}
