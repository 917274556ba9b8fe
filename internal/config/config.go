// Package config loads process configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Server is the simulation server's configuration.
type Server struct {
	// Port wins over SimPort when set, for platforms that inject PORT.
	Port        string `env:"PORT"`
	SimPort     string `env:"SIM_PORT" envDefault:"8081"`
	DataAPIBase string `env:"DATA_API_BASE" envDefault:"http://localhost:8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogEncoding string `env:"LOG_ENCODING" envDefault:"console"`
	MaxTrials   int    `env:"SIM_MAX_TRIALS" envDefault:"100000"`
	HistorySize int    `env:"SIM_HISTORY_SIZE" envDefault:"50"`
}

// Addr is the listen address.
func (s Server) Addr() string {
	if s.Port != "" {
		return ":" + s.Port
	}
	return ":" + s.SimPort
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadServer parses Server from the environment.
func LoadServer() (Server, error) {
	var s Server
	if err := ParseEnv(&s); err != nil {
		return Server{}, err
	}
	return s, nil
}
