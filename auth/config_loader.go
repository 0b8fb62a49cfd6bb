package auth

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadConfig reads a guard configuration file (YAML, JSON, or TOML by
// extension). Durations accept Go syntax ("1h", "90s").
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return cfg, nil
}
