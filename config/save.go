package config

import (
	"sync"

	"github.com/spf13/viper"
)

var configMutex sync.Mutex

// UpdateEngineSettings validates and applies new engine constants and saves
// them to the config file.
func (c *Config) UpdateEngineSettings(e EngineConfig) error {
	if err := e.Validate(); err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	c.Engine = e
	viper.Set("engine.reference_year", e.ReferenceYear)
	viper.Set("engine.load_current_a", e.LoadCurrentA)
	viper.Set("engine.daily_window_days", e.DailyWindowDays)

	return viper.WriteConfig()
}

// EngineSettings returns a copy of the current engine constants.
func (c *Config) EngineSettings() EngineConfig {
	configMutex.Lock()
	defer configMutex.Unlock()
	return c.Engine
}

// UpdateRegions replaces the region list offered by the filter.
func (c *Config) UpdateRegions(regions []string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	c.Regions = regions
	viper.Set("regions", regions)

	return viper.WriteConfig()
}
