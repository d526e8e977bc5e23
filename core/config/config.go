package config

import (
	"reflect"
	"strings"

	"vmsync/core/logger"
	"vmsync/core/netbox"
	"vmsync/core/vsphere"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Netbox holds configuration for the mirror inventory API.
	Netbox netbox.Config `mapstructure:"netbox"`
	// Vsphere holds configuration for the source platform API.
	Vsphere vsphere.Config `mapstructure:"vsphere"`
	// Sync holds configuration for the reconciliation pass itself.
	Sync SyncConfig `mapstructure:"sync"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
}

// SyncConfig holds site policy for the reconciliation pass.
type SyncConfig struct {
	// ClusterOverrides is a comma-separated list of "host-regex=cluster"
	// pairs. A source VM whose host matches a pattern is placed in the
	// named mirror cluster instead of its nominal one.
	ClusterOverrides string `mapstructure:"cluster_overrides" default:""`
}

// Load loads configuration from environment variables and an optional .env file.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. NETBOX_TOKEN -> netbox.token)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values
// in Viper based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
