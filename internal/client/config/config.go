package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// Config holds runtime settings for the authctl client.
type Config struct {
	ServerEndpointAddr string
	RequestTimeout     time.Duration
}

// LoadDefaults populates c with defaults matching a local server.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.RequestTimeout = 5 * time.Second
}

// Load applies defaults, then the JSON file named by -c/-config, then flags.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if cfg.ServerEndpointAddr == "" {
		return nil, fmt.Errorf("%w: server address is empty", common.ErrConfiguration)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("%w: request timeout must be positive", common.ErrConfiguration)
	}
	return cfg, nil
}

// LoadConfig reads the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}
