package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultConfigFile = "./config/config.yaml"

type Postgres struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (p Postgres) ConnStr() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s", p.Host, p.User, p.Password, p.DBName, p.Port, p.SSLMode)
}

type Ollama struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	ParserModel  string `mapstructure:"parserModel"`
	QueryModel   string `mapstructure:"queryModel"`
	ContextModel string `mapstructure:"contextModel"`
}

func (o *Ollama) Address() string {
	return fmt.Sprintf("http://%s:%s", o.Host, o.Port)
}

type Server struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Pipeline tunes the recommendation stages.
type Pipeline struct {
	TopK             int           `mapstructure:"topK"`
	StageTimeout     time.Duration `mapstructure:"stageTimeout"`
	MaxRetries       uint          `mapstructure:"maxRetries"`
	RetryDelay       time.Duration `mapstructure:"retryDelay"`
	Dialect          string        `mapstructure:"dialect"`
	FallbackTemplate bool          `mapstructure:"fallbackTemplate"`
}

type Catalog struct {
	Table string `mapstructure:"table"`
}

type Ingest struct {
	DataPath  string `mapstructure:"dataPath"`
	BatchSize int    `mapstructure:"batchSize"`
	Migrate   bool   `mapstructure:"migrate"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

func (l Log) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type Config struct {
	Postgres Postgres `mapstructure:"postgres"`
	Ollama   Ollama   `mapstructure:"ollama"`
	Server   Server   `mapstructure:"server"`
	Pipeline Pipeline `mapstructure:"pipeline"`
	Catalog  Catalog  `mapstructure:"catalog"`
	Ingest   Ingest   `mapstructure:"ingest"`
	Log      Log      `mapstructure:"log"`
}

// legacyEnv maps config keys to the variable names older deployments export.
// USER is left out: it is the login name on most shells.
var legacyEnv = map[string]string{
	"postgres.host":     "HOST",
	"postgres.database": "DB_NAME",
	"postgres.password": "DB_PASSWORD",
	"ingest.dataPath":   "DATA_PATH",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("ollama.host", "localhost")
	v.SetDefault("ollama.port", "11434")
	v.SetDefault("ollama.parserModel", "llama3.1")
	v.SetDefault("ollama.queryModel", "llama3.1")
	v.SetDefault("ollama.contextModel", "llama3.1")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("pipeline.topK", 20)
	v.SetDefault("pipeline.stageTimeout", 60*time.Second)
	v.SetDefault("pipeline.maxRetries", 0)
	v.SetDefault("pipeline.retryDelay", 500*time.Millisecond)
	v.SetDefault("pipeline.dialect", "PostgreSQL")
	v.SetDefault("catalog.table", "products")
	v.SetDefault("ingest.batchSize", 500)
	v.SetDefault("log.level", "info")
}

// Load reads the YAML file at path, then lets the environment override it.
// A missing file is fine as long as the environment carries the settings.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, legacy := range legacyEnv {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Pipeline.TopK < 1 {
		return fmt.Errorf("pipeline.topK must be positive, got %d", c.Pipeline.TopK)
	}
	if c.Pipeline.MaxRetries > 1 {
		return fmt.Errorf("pipeline.maxRetries may be 0 or 1, got %d", c.Pipeline.MaxRetries)
	}
	if c.Pipeline.StageTimeout <= 0 {
		return fmt.Errorf("pipeline.stageTimeout must be positive")
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("ingest.batchSize must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Catalog.Table == "" {
		return fmt.Errorf("catalog.table is required")
	}

	return nil
}

func LoadConfig() *Config {
	// .env is optional; variables already in the environment win.
	_ = godotenv.Load()

	config, err := Load(defaultConfigFile)
	if err != nil {
		log.Fatal(err)
	}

	return config
}
