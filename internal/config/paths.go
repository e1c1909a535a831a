package config

import (
	"os"
	"path/filepath"
)

// DefaultConfigFile is the system-wide configuration path.
const DefaultConfigFile = "/etc/subctl/subctl.yaml"

// Cache file names under PathsConfig.CacheDir.
const (
	factsCacheFile            = "facts/facts.json"
	profileCacheFile          = "packages/profile.json"
	installedProductCacheFile = "cache/installed_products.json"
)

// GetConfigFile returns the config file path.
// If SUBCTL_CONFIG is set, it takes precedence over the default.
func GetConfigFile() string {
	if envPath := os.Getenv("SUBCTL_CONFIG"); envPath != "" {
		return envPath
	}
	return DefaultConfigFile
}

// FactsCache returns the path of the last-uploaded facts snapshot.
func (p PathsConfig) FactsCache() string {
	return filepath.Join(p.CacheDir, factsCacheFile)
}

// ProfileCache returns the path of the last-uploaded package profile.
func (p PathsConfig) ProfileCache() string {
	return filepath.Join(p.CacheDir, profileCacheFile)
}

// InstalledProductsCache returns the path of the last-uploaded installed products.
func (p PathsConfig) InstalledProductsCache() string {
	return filepath.Join(p.CacheDir, installedProductCacheFile)
}

// IdentityCert returns the consumer identity certificate path.
func (c CertConfig) IdentityCert() string {
	return filepath.Join(c.ConsumerCertDir, "cert.pem")
}

// IdentityKey returns the consumer identity key path.
func (c CertConfig) IdentityKey() string {
	return filepath.Join(c.ConsumerCertDir, "key.pem")
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if len(path) == 1 {
		return homeDir, nil
	}

	// Handle ~/path/to/something
	if path[1] == '/' || path[1] == filepath.Separator {
		return filepath.Join(homeDir, path[2:]), nil
	}

	// Handle ~username (not supported, return as-is)
	return path, nil
}
