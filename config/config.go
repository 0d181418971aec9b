package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del motor.
type Config struct {
	Chain   ChainConfig   `yaml:"chain"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Refresh RefreshConfig `yaml:"refresh"`
	Writes  WritesConfig  `yaml:"writes"`
	Session SessionConfig `yaml:"session"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// ChainConfig apunta al nodo RPC.
type ChainConfig struct {
	RPCURL  string `yaml:"rpc_url"`
	ChainID int64  `yaml:"chain_id"`
}

// LedgerConfig describe el contrato y el ritmo de lecturas.
type LedgerConfig struct {
	Contract        string  `yaml:"contract"`
	RatePerSecond   float64 `yaml:"rate_per_second"`  // lecturas y envíos por segundo contra el RPC
	ReadConcurrency int     `yaml:"read_concurrency"` // getEvent simultáneos por pasada
}

// RefreshConfig controla el polling periódico.
type RefreshConfig struct {
	PollSeconds int `yaml:"poll_seconds"`
}

// WritesConfig controla la firma y la confirmación de escrituras.
type WritesConfig struct {
	PrivateKey            string `yaml:"-"` // solo desde el entorno
	ConfirmPollSeconds    int    `yaml:"confirm_poll_seconds"`
	ConfirmTimeoutSeconds int    `yaml:"confirm_timeout_seconds"`
}

// SessionConfig fija la identidad cuando no hay clave de firma.
type SessionConfig struct {
	UserAddress string `yaml:"user_address"`
}

// MetricsConfig controla el servidor de /metrics. Vacío = deshabilitado.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
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

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)

	return &cfg, nil
}

// PollInterval devuelve el intervalo de refresco como time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Refresh.PollSeconds) * time.Second
}

// ConfirmPoll devuelve cada cuánto se consulta el estado de una escritura.
func (c *Config) ConfirmPoll() time.Duration {
	return time.Duration(c.Writes.ConfirmPollSeconds) * time.Second
}

// ConfirmTimeout devuelve cuánto se espera una confirmación antes de darla por fallida.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Writes.ConfirmTimeoutSeconds) * time.Second
}

// CanSign indica si hay clave para enviar escrituras.
func (c *Config) CanSign() bool {
	return c.Writes.PrivateKey != ""
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CHAIN_ID %q: %w", v, err)
		}
		cfg.Chain.ChainID = id
	}
	if v := os.Getenv("CONTRACT_ADDRESS"); v != "" {
		cfg.Ledger.Contract = v
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.Writes.PrivateKey = v
	}
	if v := os.Getenv("USER_ADDRESS"); v != "" {
		cfg.Session.UserAddress = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Chain.RPCURL == "" {
		cfg.Chain.RPCURL = "https://forno.celo-sepolia.celo-testnet.org"
	}
	if cfg.Chain.ChainID <= 0 {
		cfg.Chain.ChainID = 11142220 // Celo Sepolia
	}
	if cfg.Ledger.Contract == "" {
		cfg.Ledger.Contract = "0xd60dD40EBB2b0Aec09445bAEdE0f4d6f3C176EEE"
	}
	if cfg.Ledger.RatePerSecond <= 0 {
		cfg.Ledger.RatePerSecond = 20
	}
	if cfg.Ledger.ReadConcurrency <= 0 {
		cfg.Ledger.ReadConcurrency = 8
	}
	if cfg.Refresh.PollSeconds <= 0 {
		cfg.Refresh.PollSeconds = 10
	}
	if cfg.Writes.ConfirmPollSeconds <= 0 {
		cfg.Writes.ConfirmPollSeconds = 3
	}
	if cfg.Writes.ConfirmTimeoutSeconds <= 0 {
		cfg.Writes.ConfirmTimeoutSeconds = 120
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
