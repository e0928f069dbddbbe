package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// DebugMode enables verbose frame logging across the bridge.
var DebugMode = os.Getenv("DEBUG") == "true"

type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool

	// Instrument subscribed to by the demo entrypoint, e.g. BTC-PERPETUAL.
	Instrument string

	MetricsAddr string
}

// Load reads configuration from a .env file (if present) and the
// environment. Credentials are mandatory, everything else has a default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	conf := &Config{
		APIKey:      os.Getenv("DERIBIT_API_KEY"),
		APISecret:   os.Getenv("DERIBIT_API_SECRET"),
		Testnet:     os.Getenv("DERIBIT_TESTNET") != "false",
		Instrument:  os.Getenv("INSTRUMENT"),
		MetricsAddr: os.Getenv("METRICS_ADDR"),
	}

	if conf.APIKey == "" || conf.APISecret == "" {
		return nil, fmt.Errorf("DERIBIT_API_KEY and DERIBIT_API_SECRET must be set")
	}

	if conf.Instrument == "" {
		conf.Instrument = "BTC-PERPETUAL"
	}

	if conf.MetricsAddr == "" {
		conf.MetricsAddr = ":8080"
	}

	return conf, nil
}

func (c *Config) RestURL() string {
	if c.Testnet {
		return "https://test.deribit.com/api/v2"
	}
	return "https://www.deribit.com/api/v2"
}

func (c *Config) WsURL() string {
	if c.Testnet {
		return "wss://test.deribit.com/ws/api/v2"
	}
	return "wss://www.deribit.com/ws/api/v2"
}
