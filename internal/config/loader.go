package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Environment variable prefix for subctl configuration.
const envPrefix = "SUBCTL"

// Loader handles loading and merging configuration from multiple sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
// Every key is registered with its default so that SUBCTL_* variables
// override nested values even when no config file exists.
func NewLoader() *Loader {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	return &Loader{v: v}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.hostname", d.Server.Hostname)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.prefix", d.Server.Prefix)
	v.SetDefault("server.insecure", d.Server.Insecure)
	v.SetDefault("server.caCertDir", d.Server.CACertDir)
	v.SetDefault("server.timeoutSeconds", d.Server.TimeoutSeconds)

	v.SetDefault("certs.baseURL", d.Certs.BaseURL)
	v.SetDefault("certs.repoCACert", d.Certs.RepoCACert)
	v.SetDefault("certs.productCertDir", d.Certs.ProductCertDir)
	v.SetDefault("certs.entitlementCertDir", d.Certs.EntitlementCertDir)
	v.SetDefault("certs.consumerCertDir", d.Certs.ConsumerCertDir)
	v.SetDefault("certs.manageRepos", d.Certs.ManageRepos)

	v.SetDefault("paths.lockFile", d.Paths.LockFile)
	v.SetDefault("paths.cacheDir", d.Paths.CacheDir)
	v.SetDefault("paths.factsDir", d.Paths.FactsDir)
	v.SetDefault("paths.repoFile", d.Paths.RepoFile)
	v.SetDefault("paths.archiveDir", d.Paths.ArchiveDir)

	v.SetDefault("facts.graylist", d.Facts.Graylist)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)

	_ = v.BindEnv("log.timestamps", "SUBCTL_LOG_TIMESTAMPS")
}

// Load loads configuration from the given file path.
// If configFile is empty, it uses GetConfigFile.
// Environment variables take precedence over file values.
func (l *Loader) Load(configFile string) (*Config, error) {
	if configFile == "" {
		configFile = GetConfigFile()
	}

	expandedPath, err := ExpandPath(configFile)
	if err != nil {
		return nil, fmt.Errorf("expanding config path: %w", err)
	}

	l.v.SetConfigFile(expandedPath)
	l.v.SetConfigType("yaml")

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults + env vars
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// ConfigFileExists checks if the config file exists.
func ConfigFileExists(configFile string) (bool, error) {
	if configFile == "" {
		configFile = GetConfigFile()
	}

	expandedPath, err := ExpandPath(configFile)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(expandedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}
