// Package config загружает конфигурацию процессов AgentSquad.
//
// Источники в порядке приоритета: переменные окружения, YAML-файл
// (путь из SQUAD_CONFIG или аргумента Load), значения по умолчанию.
//
// Переменные окружения:
//   - DB_URL, RABBITMQ_URL, ORCH_PORT, WORKER_PORT, API_URL — короткие имена
//   - SQUAD_<SECTION>_<KEY> — любой ключ, например SQUAD_ESCALATION_MAX_LEVEL
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/shaiso/AgentSquad/internal/domain"
	"github.com/shaiso/AgentSquad/internal/watchdog"
	"github.com/shaiso/AgentSquad/internal/worker"
)

// EnvConfigFile — переменная с путём к YAML-файлу.
const EnvConfigFile = "SQUAD_CONFIG"

// Config — полная конфигурация.
type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	RabbitMQ     RabbitMQConfig     `mapstructure:"rabbitmq"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Escalation   EscalationConfig   `mapstructure:"escalation"`
	Watchdog     WatchdogConfig     `mapstructure:"watchdog"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Roster       RosterConfig       `mapstructure:"roster"`
}

// DatabaseConfig — PostgreSQL. Пустой URL означает хранение в памяти.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RabbitMQConfig — брокер для моста шины. Пустой URL отключает мост.
type RabbitMQConfig struct {
	URL        string `mapstructure:"url"`
	Prefetch   int    `mapstructure:"prefetch"`
	OutboxSize int    `mapstructure:"outbox_size"`
}

// HTTPConfig — порты процессов и адрес REST API для CLI.
type HTTPConfig struct {
	OrchestratorPort int    `mapstructure:"orch_port"`
	WorkerPort       int    `mapstructure:"worker_port"`
	APIURL           string `mapstructure:"api_url"`
}

// OrchestratorConfig — адреса на шине.
type OrchestratorConfig struct {
	ID      string `mapstructure:"id"`
	HumanID string `mapstructure:"human_id"`
}

// EscalationConfig — политика эскалации человеку.
type EscalationConfig struct {
	MaxLevel     int           `mapstructure:"max_level"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
	BlockedAfter time.Duration `mapstructure:"blocked_after"`
}

// WatchdogConfig — периодическая проверка executions.
type WatchdogConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Schedule     string        `mapstructure:"schedule"`
	StallTimeout time.Duration `mapstructure:"stall_timeout"`
}

// WorkerConfig — runner исполнителей.
type WorkerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	QueueSize      int           `mapstructure:"queue_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// Simulate — SimulatedInvoker вместо HTTP (локальный запуск).
	Simulate       bool          `mapstructure:"simulate"`
	SimulatedDelay time.Duration `mapstructure:"simulated_delay"`

	Retry RetryConfig `mapstructure:"retry"`
}

// RetryConfig — повторы вызова исполнителя.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	Backoff      string        `mapstructure:"backoff"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	OnStatus     []int         `mapstructure:"on_status"`
}

// RosterConfig — исполнители, известные процессу при старте.
type RosterConfig struct {
	// TeamID — команда исполнителей (пусто — общие исполнители).
	TeamID  string       `mapstructure:"team_id"`
	Workers []WorkerSpec `mapstructure:"workers"`
}

// WorkerSpec — описание исполнителя в конфигурации.
type WorkerSpec struct {
	ID              string   `mapstructure:"id"`
	Name            string   `mapstructure:"name"`
	Role            string   `mapstructure:"role"`
	Specializations []string `mapstructure:"specializations"`
	Capabilities    []string `mapstructure:"capabilities"`
	Endpoint        string   `mapstructure:"endpoint"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxConns: 10,
		},
		RabbitMQ: RabbitMQConfig{
			Prefetch:   10,
			OutboxSize: 256,
		},
		HTTP: HTTPConfig{
			OrchestratorPort: 8081,
			WorkerPort:       8082,
			APIURL:           "http://localhost:8081",
		},
		Orchestrator: OrchestratorConfig{
			ID:      "orchestrator",
			HumanID: "human",
		},
		Escalation: EscalationConfig{
			MaxLevel:     3,
			Cooldown:     15 * time.Minute,
			BlockedAfter: 30 * time.Minute,
		},
		Watchdog: WatchdogConfig{
			Enabled:      true,
			Schedule:     watchdog.DefaultSchedule,
			StallTimeout: 30 * time.Minute,
		},
		Worker: WorkerConfig{
			Concurrency:    4,
			QueueSize:      64,
			RequestTimeout: 30 * time.Second,
			SimulatedDelay: time.Second,
			Retry: RetryConfig{
				MaxAttempts:  3,
				Backoff:      worker.BackoffExponential,
				InitialDelay: time.Second,
				MaxDelay:     30 * time.Second,
			},
		},
	}
}

// setDefaults регистрирует значения по умолчанию в viper.
// Ключ без default не читается из окружения при Unmarshal.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.max_conns", d.Database.MaxConns)

	v.SetDefault("rabbitmq.url", d.RabbitMQ.URL)
	v.SetDefault("rabbitmq.prefetch", d.RabbitMQ.Prefetch)
	v.SetDefault("rabbitmq.outbox_size", d.RabbitMQ.OutboxSize)

	v.SetDefault("http.orch_port", d.HTTP.OrchestratorPort)
	v.SetDefault("http.worker_port", d.HTTP.WorkerPort)
	v.SetDefault("http.api_url", d.HTTP.APIURL)

	v.SetDefault("orchestrator.id", d.Orchestrator.ID)
	v.SetDefault("orchestrator.human_id", d.Orchestrator.HumanID)

	v.SetDefault("escalation.max_level", d.Escalation.MaxLevel)
	v.SetDefault("escalation.cooldown", d.Escalation.Cooldown)
	v.SetDefault("escalation.blocked_after", d.Escalation.BlockedAfter)

	v.SetDefault("watchdog.enabled", d.Watchdog.Enabled)
	v.SetDefault("watchdog.schedule", d.Watchdog.Schedule)
	v.SetDefault("watchdog.stall_timeout", d.Watchdog.StallTimeout)

	v.SetDefault("worker.concurrency", d.Worker.Concurrency)
	v.SetDefault("worker.queue_size", d.Worker.QueueSize)
	v.SetDefault("worker.request_timeout", d.Worker.RequestTimeout)
	v.SetDefault("worker.simulate", d.Worker.Simulate)
	v.SetDefault("worker.simulated_delay", d.Worker.SimulatedDelay)
	v.SetDefault("worker.retry.max_attempts", d.Worker.Retry.MaxAttempts)
	v.SetDefault("worker.retry.backoff", d.Worker.Retry.Backoff)
	v.SetDefault("worker.retry.initial_delay", d.Worker.Retry.InitialDelay)
	v.SetDefault("worker.retry.max_delay", d.Worker.Retry.MaxDelay)
	v.SetDefault("worker.retry.on_status", []int{})

	v.SetDefault("roster.team_id", "")
	v.SetDefault("roster.workers", []WorkerSpec{})
}

// bindEnv связывает короткие имена переменных окружения.
func bindEnv(v *viper.Viper) error {
	pairs := map[string]string{
		"database.url":     "DB_URL",
		"rabbitmq.url":     "RABBITMQ_URL",
		"http.orch_port":   "ORCH_PORT",
		"http.worker_port": "WORKER_PORT",
		"http.api_url":     "API_URL",
	}
	for key, env := range pairs {
		if err := v.BindEnv(key, env, "SQUAD_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}

	v.SetEnvPrefix("SQUAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return nil
}

// Load читает конфигурацию и проверяет её.
//
// path — YAML-файл; если пусто, используется SQUAD_CONFIG; если и он
// пуст, файл не читается.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// TeamID возвращает команду исполнителей из конфигурации.
func (c *Config) TeamID() uuid.UUID {
	if c.Roster.TeamID == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(c.Roster.TeamID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Workers переводит описания исполнителей в domain.Worker.
func (c *Config) Workers() []domain.Worker {
	out := make([]domain.Worker, 0, len(c.Roster.Workers))
	for _, spec := range c.Roster.Workers {
		w := domain.Worker{
			ID:              spec.ID,
			Name:            spec.Name,
			Role:            domain.Role(spec.Role),
			Specializations: spec.Specializations,
			Available:       true,
			Endpoint:        spec.Endpoint,
		}
		for _, capability := range spec.Capabilities {
			w.Capabilities = append(w.Capabilities, domain.Role(capability))
		}
		out = append(out, w)
	}
	return out
}

// RetryPolicy возвращает политику повторов runner'а.
func (c *Config) RetryPolicy() worker.RetryPolicy {
	r := c.Worker.Retry
	return worker.RetryPolicy{
		MaxAttempts:  r.MaxAttempts,
		Backoff:      r.Backoff,
		InitialDelay: r.InitialDelay,
		MaxDelay:     r.MaxDelay,
		OnStatus:     r.OnStatus,
	}
}

// WatchdogPolicy возвращает пороги watchdog'а.
func (c *Config) WatchdogPolicy() watchdog.Policy {
	return watchdog.Policy{
		StallTimeout: c.Watchdog.StallTimeout,
		BlockedAfter: c.Escalation.BlockedAfter,
		Cooldown:     c.Escalation.Cooldown,
		MaxLevel:     c.Escalation.MaxLevel,
	}
}
