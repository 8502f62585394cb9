package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	cronlib "github.com/robfig/cron/v3"

	"github.com/example/lounge-reconciler/internal/docstore"
	"github.com/example/lounge-reconciler/internal/window"
)

// Store backends.
const (
	StoreMemory    = "memory"
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"
)

// Push backends.
const (
	PushLog = "log"
	PushFCM = "fcm"
)

// Config captures environment driven configuration values for the reconciler.
type Config struct {
	HTTPPort int

	Store            string
	SQLiteDSN        string
	FirestoreProject string

	Push            string
	FCMProject      string
	CredentialsFile string

	RedisAddr     string
	PubSubProject string
	PubSubTopic   string

	// TriggerToken guards manual job runs over HTTP when set.
	TriggerToken string

	BatchSize   int
	Concurrency int
	RunTimeout  time.Duration

	Reminder  ReminderConfig
	AutoClose AutoCloseConfig
}

// ReminderConfig configures the escort reminder job.
type ReminderConfig struct {
	Cron string
	// Location evaluates Cron and renders appointment times in reminder
	// bodies. The window itself is zone independent.
	Location          *time.Location
	Lead              time.Duration
	Width             time.Duration
	RequireNotStarted bool
}

// AutoCloseConfig configures the attendance auto-close job.
type AutoCloseConfig struct {
	Cron         string
	Location     *time.Location
	Hour         int
	Minute       int
	LookbackDays int
	Notify       bool
}

// Cutover returns the daily window for the auto-close job.
func (c AutoCloseConfig) Cutover() window.Daily {
	return window.Daily{Location: c.Location, Hour: c.Hour, Minute: c.Minute, LookbackDays: c.LookbackDays}
}

// Window returns the rolling window for the reminder job.
func (c ReminderConfig) Window() window.Rolling {
	return window.Rolling{Lead: c.Lead, Width: c.Width}
}

const envPrefix = "RECONCILER_"

type env struct {
	missing []string
	invalid []string
}

func (e *env) get(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func (e *env) bad(key string) {
	e.invalid = append(e.invalid, envPrefix+key)
}

func (e *env) required(key string) string {
	value := e.get(key)
	if value == "" {
		e.missing = append(e.missing, envPrefix+key)
	}
	return value
}

func (e *env) int(key string, dst *int, ok func(int) bool) {
	value := e.get(key)
	if value == "" {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil || !ok(n) {
		e.bad(key)
		return
	}
	*dst = n
}

func (e *env) duration(key string, dst *time.Duration, ok func(time.Duration) bool) {
	value := e.get(key)
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil || !ok(d) {
		e.bad(key)
		return
	}
	*dst = d
}

func (e *env) bool(key string, dst *bool) {
	value := e.get(key)
	if value == "" {
		return
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		e.bad(key)
		return
	}
	*dst = b
}

func (e *env) location(key string, dst **time.Location) {
	value := e.get(key)
	if value == "" {
		return
	}
	loc, err := time.LoadLocation(value)
	if err != nil {
		e.bad(key)
		return
	}
	*dst = loc
}

func (e *env) cron(key string, dst *string) {
	value := e.get(key)
	if value == "" {
		return
	}
	if _, err := cronParser.Parse(value); err != nil {
		e.bad(key)
		return
	}
	*dst = value
}

var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Load parses configuration values from the current process environment.
//
// A .env file in the working directory is read first when present; variables
// already set in the environment take precedence. Missing and invalid values
// are aggregated and reported together.
func Load() (Config, error) {
	_ = godotenv.Load()

	johannesburg, err := time.LoadLocation("Africa/Johannesburg")
	if err != nil {
		johannesburg = time.FixedZone("SAST", 2*60*60)
	}

	cfg := Config{
		HTTPPort:    8080,
		Store:       StoreMemory,
		SQLiteDSN:   "file:reconciler.db",
		Push:        PushLog,
		BatchSize:   docstore.DefaultChunkSize,
		Concurrency: 8,
		RunTimeout:  5 * time.Minute,
		Reminder: ReminderConfig{
			Cron:              "*/2 * * * *",
			Location:          johannesburg,
			Width:             10 * time.Minute,
			RequireNotStarted: true,
		},
		AutoClose: AutoCloseConfig{
			Cron:     "0 0 * * *",
			Location: johannesburg,
		},
	}

	e := &env{}
	positive := func(n int) bool { return n > 0 }

	e.int("HTTP_PORT", &cfg.HTTPPort, positive)

	switch store := e.get("STORE"); store {
	case "":
	case StoreMemory, StoreSQLite, StoreFirestore:
		cfg.Store = store
	default:
		e.bad("STORE")
	}
	if dsn := e.get("SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	if cfg.Store == StoreFirestore {
		cfg.FirestoreProject = e.required("FIRESTORE_PROJECT")
	}

	switch push := e.get("PUSH"); push {
	case "":
	case PushLog, PushFCM:
		cfg.Push = push
	default:
		e.bad("PUSH")
	}
	if cfg.Push == PushFCM {
		cfg.FCMProject = e.get("FCM_PROJECT")
		if cfg.FCMProject == "" {
			cfg.FCMProject = cfg.FirestoreProject
		}
		if cfg.FCMProject == "" {
			e.missing = append(e.missing, envPrefix+"FCM_PROJECT")
		}
	}
	cfg.CredentialsFile = e.get("CREDENTIALS_FILE")
	cfg.RedisAddr = e.get("REDIS_ADDR")
	cfg.PubSubTopic = e.get("PUBSUB_TOPIC")
	if cfg.PubSubTopic != "" {
		cfg.PubSubProject = e.get("PUBSUB_PROJECT")
		if cfg.PubSubProject == "" {
			cfg.PubSubProject = cfg.FirestoreProject
		}
		if cfg.PubSubProject == "" {
			e.missing = append(e.missing, envPrefix+"PUBSUB_PROJECT")
		}
	}
	cfg.TriggerToken = e.get("TRIGGER_TOKEN")

	e.int("BATCH_SIZE", &cfg.BatchSize, func(n int) bool { return n > 0 && n <= docstore.PlatformMaxBatchOps })
	e.int("CONCURRENCY", &cfg.Concurrency, positive)
	e.duration("RUN_TIMEOUT", &cfg.RunTimeout, func(d time.Duration) bool { return d > 0 })

	e.cron("REMINDER_CRON", &cfg.Reminder.Cron)
	e.location("REMINDER_TZ", &cfg.Reminder.Location)
	e.duration("REMINDER_LEAD", &cfg.Reminder.Lead, func(d time.Duration) bool { return d >= 0 })
	e.duration("REMINDER_WINDOW", &cfg.Reminder.Width, func(d time.Duration) bool { return d > 0 })
	e.bool("REMINDER_REQUIRE_NOT_STARTED", &cfg.Reminder.RequireNotStarted)

	e.cron("AUTOCLOSE_CRON", &cfg.AutoClose.Cron)
	e.location("AUTOCLOSE_TZ", &cfg.AutoClose.Location)
	if cutover := e.get("AUTOCLOSE_CUTOVER"); cutover != "" {
		hour, minute, err := window.ParseClock(cutover)
		if err != nil {
			e.bad("AUTOCLOSE_CUTOVER")
		} else {
			cfg.AutoClose.Hour, cfg.AutoClose.Minute = hour, minute
		}
	}
	e.int("AUTOCLOSE_LOOKBACK_DAYS", &cfg.AutoClose.LookbackDays, func(n int) bool { return n >= 0 })
	e.bool("AUTOCLOSE_NOTIFY", &cfg.AutoClose.Notify)

	if len(e.missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(e.missing, ", "))
	}
	if len(e.invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(e.invalid, ", "))
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate checks relations between values.
func (c Config) validate() error {
	cadence, err := Cadence(c.Reminder.Cron, time.Now())
	if err != nil {
		return fmt.Errorf("config: reminder schedule: %w", err)
	}
	if err := c.Reminder.Window().Validate(cadence); err != nil {
		return fmt.Errorf("config: %s: %w", envPrefix+"REMINDER_WINDOW", err)
	}
	return nil
}

// Cadence estimates the interval of a cron spec as the largest gap between
// its next few firings after from.
func Cadence(spec string, from time.Time) (time.Duration, error) {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return 0, err
	}
	var widest time.Duration
	prev := schedule.Next(from)
	for range 8 {
		next := schedule.Next(prev)
		if gap := next.Sub(prev); gap > widest {
			widest = gap
		}
		prev = next
	}
	return widest, nil
}
