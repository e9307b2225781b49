package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del engine.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Keeper  KeeperConfig  `yaml:"keeper"`
	Feed    FeedConfig    `yaml:"feed"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig controla las cuentas del protocolo y la frescura del feed.
type EngineConfig struct {
	Treasury           string `yaml:"treasury"`
	Insurance          string `yaml:"insurance"`
	PriceMaxAgeSeconds int    `yaml:"price_max_age_seconds"` // staleness del feed en resolución
	LockWindowSeconds  int    `yaml:"lock_window_seconds"`   // ventana de lock por defecto
}

// KeeperConfig controla el loop de resolución automatizada.
type KeeperConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// FeedConfig contiene el base URL y el rate limit del feed de precios.
type FeedConfig struct {
	BaseURL    string  `yaml:"base_url"`
	RatePerSec float64 `yaml:"rate_per_sec"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si
// existe. Los valores del .env sobreescriben los del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// PriceMaxAge devuelve la ventana de frescura como time.Duration.
func (c *Config) PriceMaxAge() time.Duration {
	return time.Duration(c.Engine.PriceMaxAgeSeconds) * time.Second
}

// LockWindow devuelve la ventana de lock por defecto como time.Duration.
func (c *Config) LockWindow() time.Duration {
	return time.Duration(c.Engine.LockWindowSeconds) * time.Second
}

// KeeperInterval devuelve el intervalo del keeper como time.Duration.
func (c *Config) KeeperInterval() time.Duration {
	return time.Duration(c.Keeper.IntervalSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("GENIO_TREASURY"); v != "" {
		cfg.Engine.Treasury = v
	}
	if v := os.Getenv("GENIO_FEED_URL"); v != "" {
		cfg.Feed.BaseURL = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Engine.Treasury == "" {
		cfg.Engine.Treasury = "treasury"
	}
	if cfg.Engine.Insurance == "" {
		cfg.Engine.Insurance = "insurance"
	}
	if cfg.Engine.PriceMaxAgeSeconds <= 0 {
		cfg.Engine.PriceMaxAgeSeconds = 60
	}
	if cfg.Engine.LockWindowSeconds < 0 {
		cfg.Engine.LockWindowSeconds = 0
	}
	if cfg.Keeper.IntervalSeconds <= 0 {
		cfg.Keeper.IntervalSeconds = 30
	}
	if cfg.Feed.RatePerSec <= 0 {
		cfg.Feed.RatePerSec = 5
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "genio.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
