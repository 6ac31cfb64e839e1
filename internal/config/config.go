// Package config loads the grader configuration from a TOML file, an
// optional .env file and DISTTESTER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/disttester/internal/xdg"
)

// Duration is a time.Duration written as "3s" or "1m30s".
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	HostIP      string      `toml:"host_ip"`
	Runtime     Runtime     `toml:"runtime"`
	Ports       Ports       `toml:"ports"`
	Executor    Executor    `toml:"executor"`
	Store       Store       `toml:"store"`
	Tasks       Tasks       `toml:"tasks"`
	LMS         LMS         `toml:"lms"`
	Attachments Attachments `toml:"attachments"`
	Metrics     Metrics     `toml:"metrics"`
	Log         Log         `toml:"log"`
}

type Runtime struct {
	Binary string `toml:"binary"`
	// ImageCommand launches one container; see NAME, SUBMISSIONS, PORTS.
	ImageCommand string `toml:"image_command"`
	Shell        string `toml:"shell"`
}

type Ports struct {
	Min         int `toml:"min"`
	Max         int `toml:"max"`
	MaxAttempts int `toml:"max_attempts"`
}

type Executor struct {
	AsyncCheckDelay Duration `toml:"async_check_delay"`
	MarkerDir       string   `toml:"marker_dir"`
}

type Store struct {
	// Driver is memory, sqlite or postgres.
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type Tasks struct {
	// Backend is local, sqs or nats.
	Backend      string   `toml:"backend"`
	Workers      int      `toml:"workers"`
	QueueSize    int      `toml:"queue_size"`
	MaxAttempts  int      `toml:"max_attempts"`
	RetryBackoff Duration `toml:"retry_backoff"`
	SQSQueueURL  string   `toml:"sqs_queue_url"`
	SQSRegion    string   `toml:"sqs_region"`
	NATSURL      string   `toml:"nats_url"`
	NATSStream   string   `toml:"nats_stream"`
	NATSSubject  string   `toml:"nats_subject"`
	DryRun       bool     `toml:"dry_run"`
}

type LMS struct {
	// Kind is log or canvas.
	Kind     string `toml:"kind"`
	BaseURL  string `toml:"base_url"`
	CourseID string `toml:"course_id"`
	Token    string `toml:"token"`
}

type Attachments struct {
	CacheDir string `toml:"cache_dir"`
	S3Region string `toml:"s3_region"`
}

type Metrics struct {
	Addr string `toml:"addr"`
}

type Log struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

func Default() Config {
	return Config{
		HostIP: "127.0.0.1",
		Runtime: Runtime{
			Binary:       "docker",
			ImageCommand: "docker run -d --name NAME -v SUBMISSIONS:/home/student/submission PORTS disttester/runner",
			Shell:        "bash",
		},
		Ports:    Ports{Min: 10000, Max: 20000, MaxAttempts: 1000},
		Executor: Executor{AsyncCheckDelay: Duration(3 * time.Second)},
		Store:    Store{Driver: "sqlite", DSN: filepath.Join(xdg.DataHome(), "disttester", "pool.db")},
		Tasks: Tasks{
			Backend:      "local",
			Workers:      4,
			QueueSize:    256,
			MaxAttempts:  5,
			RetryBackoff: Duration(2 * time.Second),
			SQSRegion:    "eu-central-1",
			NATSStream:   "DISTTESTER_TASKS",
			NATSSubject:  "disttester.tasks",
		},
		LMS:         LMS{Kind: "log"},
		Attachments: Attachments{CacheDir: filepath.Join(xdg.CacheHome(), "disttester", "peers"), S3Region: "eu-central-1"},
		Log:         Log{Level: "info"},
	}
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome(), "disttester", "config.toml")
}

// Load reads path on top of the defaults. A missing file at the default
// path is not an error. Environment variables win over the file.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"DISTTESTER_HOST_IP":       &cfg.HostIP,
		"DISTTESTER_IMAGE_COMMAND": &cfg.Runtime.ImageCommand,
		"DISTTESTER_STORE_DRIVER":  &cfg.Store.Driver,
		"DISTTESTER_STORE_DSN":     &cfg.Store.DSN,
		"DISTTESTER_TASKS_BACKEND": &cfg.Tasks.Backend,
		"DISTTESTER_SQS_QUEUE_URL": &cfg.Tasks.SQSQueueURL,
		"DISTTESTER_NATS_URL":      &cfg.Tasks.NATSURL,
		"DISTTESTER_LMS_KIND":      &cfg.LMS.Kind,
		"DISTTESTER_LMS_BASE_URL":  &cfg.LMS.BaseURL,
		"DISTTESTER_LMS_TOKEN":     &cfg.LMS.Token,
		"DISTTESTER_LOG_LEVEL":     &cfg.Log.Level,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("DISTTESTER_DRY_RUN"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DISTTESTER_DRY_RUN: %w", err)
		}
		cfg.Tasks.DryRun = b
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Ports.Min < 1 || c.Ports.Max > 65535 || c.Ports.Min > c.Ports.Max {
		errs = append(errs, fmt.Errorf("ports: invalid range %d-%d", c.Ports.Min, c.Ports.Max))
	}
	if c.Runtime.ImageCommand == "" {
		errs = append(errs, errors.New("runtime.image_command is empty"))
	}
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	switch c.Tasks.Backend {
	case "local":
	case "sqs":
		if c.Tasks.SQSQueueURL == "" {
			errs = append(errs, errors.New("tasks.sqs_queue_url is required for the sqs backend"))
		}
	case "nats":
		if c.Tasks.NATSURL == "" {
			errs = append(errs, errors.New("tasks.nats_url is required for the nats backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("tasks.backend: unknown backend %q", c.Tasks.Backend))
	}
	switch c.LMS.Kind {
	case "log":
	case "canvas":
		if c.LMS.BaseURL == "" || c.LMS.CourseID == "" || c.LMS.Token == "" {
			errs = append(errs, errors.New("lms: canvas needs base_url, course_id and token"))
		}
	default:
		errs = append(errs, fmt.Errorf("lms.kind: unknown kind %q", c.LMS.Kind))
	}
	return errors.Join(errs...)
}
