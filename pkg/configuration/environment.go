package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/andreibyf/aishacrm-2-sub007/pkg/logging"
)

const Production = "production"

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"

	LockLocal    = "local"
	LockPostgres = "postgres"
	LockRedis    = "redis"

	NotifyOutbox = "outbox"
	NotifySync   = "sync"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the given env files from the working directory, or from the
// nearest parent directory holding a go.mod when none exist locally.
func LoadEnv(envFiles []string) (int, error) {
	existingFiles := existing(envFiles, "")
	if len(existingFiles) == 0 {
		if root, ok := findModuleRoot(); ok {
			existingFiles = existing(envFiles, root)
		}
	}
	if len(existingFiles) == 0 {
		return 0, nil
	}
	return len(existingFiles), godotenv.Load(existingFiles...)
}

func existing(envFiles []string, dir string) []string {
	out := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		path := file
		if dir != "" {
			path = filepath.Join(dir, file)
		}
		if fs.FileExists(path) {
			out = append(out, path)
		}
	}
	return out
}

func findModuleRoot() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for dir := wd; ; {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"aishacrm"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type StoreOptions struct {
	Backend    string `env:"CRM_STORE" envDefault:"postgres"`
	SQLitePath string `env:"CRM_SQLITE_PATH" envDefault:"data/crm.db"`
}

type LockOptions struct {
	Backend  string        `env:"CRM_LOCK_BACKEND" envDefault:"postgres"`
	RedisURL string        `env:"REDIS_URL" envDefault:""`
	TTL      time.Duration `env:"CRM_LOCK_TTL" envDefault:"30s"`
	Poll     time.Duration `env:"CRM_LOCK_POLL" envDefault:"25ms"`
}

type ProfileOptions struct {
	RecentLimit     int           `env:"CRM_PROFILE_RECENT_LIMIT" envDefault:"10"`
	TextMaxLen      int           `env:"CRM_PROFILE_TEXT_MAX_LEN" envDefault:"500"`
	TerminalStages  string        `env:"CRM_TERMINAL_STAGES" envDefault:"closed_won,closed_lost,won,lost"`
	RefreshInterval time.Duration `env:"CRM_PROFILE_REFRESH_INTERVAL" envDefault:"15m"`
	NotifyMode      string        `env:"CRM_NOTIFY_MODE" envDefault:"outbox"`
	OutboxTable     string        `env:"CRM_OUTBOX_TABLE" envDefault:"public.crm_outbox"`
}

// TerminalStageList splits TerminalStages into normalized stage names.
func (p *ProfileOptions) TerminalStageList() []string {
	var out []string
	for _, part := range strings.Split(p.TerminalStages, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"crmsync"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
	Address string `env:"PROMETHEUS_METRICS_ADDR" envDefault:"localhost:3201"`
}

type OutboxOptions struct {
	RelayEnabled         bool          `env:"OUTBOX_RELAY_ENABLED" envDefault:"true"`
	RelayPollInterval    time.Duration `env:"OUTBOX_RELAY_POLL_INTERVAL" envDefault:"1s"`
	RelayBatchSize       int           `env:"OUTBOX_RELAY_BATCH_SIZE" envDefault:"100"`
	RelayLockTTL         time.Duration `env:"OUTBOX_RELAY_LOCK_TTL" envDefault:"60s"`
	RelayMaxAttempts     int           `env:"OUTBOX_RELAY_MAX_ATTEMPTS" envDefault:"25"`
	RelaySingleActive    bool          `env:"OUTBOX_RELAY_SINGLE_ACTIVE" envDefault:"true"`
	RelayDispatchTimeout time.Duration `env:"OUTBOX_RELAY_DISPATCH_TIMEOUT" envDefault:"30s"`
	// RelayCoalesce merges person.changed rows of one batch that target the
	// same person.
	RelayCoalesce bool `env:"OUTBOX_RELAY_COALESCE" envDefault:"true"`

	LastErrorMaxBytes int `env:"OUTBOX_LAST_ERROR_MAX_BYTES" envDefault:"2048"`

	CleanerEnabled       bool          `env:"OUTBOX_CLEANER_ENABLED" envDefault:"true"`
	CleanerInterval      time.Duration `env:"OUTBOX_CLEANER_INTERVAL" envDefault:"1m"`
	CleanerRetention     time.Duration `env:"OUTBOX_CLEANER_RETENTION" envDefault:"168h"`
	CleanerDeadRetention time.Duration `env:"OUTBOX_CLEANER_DEAD_RETENTION" envDefault:"0"`
}

type Configuration struct {
	Database      DatabaseOptions
	Store         StoreOptions
	Lock          LockOptions
	Profile       ProfileOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	Outbox        OutboxOptions

	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:""`

	// RLS enforcement mode (disabled/enforce).
	RLSEnforce string `env:"RLS_ENFORCE" envDefault:"disabled"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	if c.LogPath != "" {
		f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
		if err != nil {
			return err
		}
		c.logFile = f
		c.logger = logger
	} else {
		c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
	}

	c.Database.Opts = c.Database.ConnectionString()
	return nil
}

// Validate normalizes enum-like options and rejects inconsistent combinations.
func (c *Configuration) Validate() error {
	var err error
	if c.Store.Backend, err = oneOf("CRM_STORE", c.Store.Backend, StorePostgres, StoreMemory, StoreSQLite); err != nil {
		return err
	}
	if c.Lock.Backend, err = oneOf("CRM_LOCK_BACKEND", c.Lock.Backend, LockLocal, LockPostgres, LockRedis); err != nil {
		return err
	}
	if c.Profile.NotifyMode, err = oneOf("CRM_NOTIFY_MODE", c.Profile.NotifyMode, NotifyOutbox, NotifySync); err != nil {
		return err
	}
	if c.RLSEnforce, err = oneOf("RLS_ENFORCE", c.RLSEnforce, "disabled", "enforce"); err != nil {
		return err
	}

	if c.Lock.Backend == LockRedis && strings.TrimSpace(c.Lock.RedisURL) == "" {
		return fmt.Errorf("CRM_LOCK_BACKEND=redis requires REDIS_URL")
	}
	if c.Lock.Backend == LockPostgres && c.Store.Backend != StorePostgres {
		return fmt.Errorf("CRM_LOCK_BACKEND=postgres requires CRM_STORE=postgres, got %q", c.Store.Backend)
	}
	if c.Profile.NotifyMode == NotifyOutbox && c.Store.Backend != StorePostgres {
		return fmt.Errorf("CRM_NOTIFY_MODE=outbox requires CRM_STORE=postgres, got %q", c.Store.Backend)
	}
	if c.Profile.RecentLimit <= 0 {
		return fmt.Errorf("CRM_PROFILE_RECENT_LIMIT must be positive, got %d", c.Profile.RecentLimit)
	}
	if c.Profile.TextMaxLen <= 0 {
		return fmt.Errorf("CRM_PROFILE_TEXT_MAX_LEN must be positive, got %d", c.Profile.TextMaxLen)
	}
	if c.Profile.RefreshInterval < 0 {
		return fmt.Errorf("CRM_PROFILE_REFRESH_INTERVAL must not be negative")
	}
	if c.RLSEnforce == "enforce" && strings.EqualFold(strings.TrimSpace(c.Database.User), "postgres") {
		return fmt.Errorf("RLS_ENFORCE=enforce requires a non-superuser DB_USER (postgres will bypass RLS)")
	}
	return nil
}

func oneOf(name, value string, allowed ...string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		v = allowed[0]
	}
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid %s=%q (expected %s)", name, value, strings.Join(allowed, "|"))
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
