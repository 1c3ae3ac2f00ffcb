// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/anvilhq/anvil/pkg/bridge"
)

func Load() error {
	return LoadFile(viper.GetString("config"))
}

func LoadFile(file string) error {
	if file != "" {
		viper.SetConfigFile(file)
		viper.SetConfigType(filepath.Ext(file)[1:])
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	return nil
}

// ParseBridgeConfig builds the bridge configuration from whichever source was
// loaded, a yaml config file or ANVIL_* environment variables.
func ParseBridgeConfig() (*bridge.Config, error) {
	cfgFile := viper.GetViper().ConfigFileUsed()
	switch filepath.Ext(cfgFile) {
	case ".yml", ".yaml":
		yamlCfg := YAMLConfig{}
		if err := viper.Unmarshal(&yamlCfg); err != nil {
			return nil, err
		}
		return yamlCfg.toBridgeConfig()
	default:
		return envConfigToBridgeConfig()
	}
}
