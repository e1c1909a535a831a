// Package config provides configuration loading and management.
package config

// ServerConfig describes how to reach the entitlement server.
type ServerConfig struct {
	// Hostname of the entitlement server.
	// Env: SUBCTL_SERVER_HOSTNAME
	Hostname string `json:"hostname" mapstructure:"hostname" yaml:"hostname"`

	// Port of the entitlement server.
	Port int `json:"port" mapstructure:"port" yaml:"port"`

	// Prefix is the API path prefix, e.g. /subscription.
	Prefix string `json:"prefix" mapstructure:"prefix" yaml:"prefix"`

	// Insecure disables server certificate verification.
	Insecure bool `json:"insecure" mapstructure:"insecure" yaml:"insecure"`

	// CACertDir holds the CA bundles used to verify the server.
	CACertDir string `json:"caCertDir" mapstructure:"caCertDir" yaml:"caCertDir"`

	// TimeoutSeconds bounds each request to the server.
	TimeoutSeconds int `json:"timeoutSeconds" mapstructure:"timeoutSeconds" yaml:"timeoutSeconds"`
}

// CertConfig locates certificates and repository settings on the host.
type CertConfig struct {
	// BaseURL is the content delivery base for generated repositories.
	BaseURL string `json:"baseURL" mapstructure:"baseURL" yaml:"baseURL"`

	// RepoCACert is the CA used by package managers to verify content.
	RepoCACert string `json:"repoCACert" mapstructure:"repoCACert" yaml:"repoCACert"`

	// ProductCertDir holds installed product certificates.
	ProductCertDir string `json:"productCertDir" mapstructure:"productCertDir" yaml:"productCertDir"`

	// EntitlementCertDir holds entitlement certificates and their keys.
	EntitlementCertDir string `json:"entitlementCertDir" mapstructure:"entitlementCertDir" yaml:"entitlementCertDir"`

	// ConsumerCertDir holds the consumer identity certificate and key.
	ConsumerCertDir string `json:"consumerCertDir" mapstructure:"consumerCertDir" yaml:"consumerCertDir"`

	// ManageRepos controls generation of the repo file.
	ManageRepos bool `json:"manageRepos" mapstructure:"manageRepos" yaml:"manageRepos"`
}

// PathsConfig locates state files written by subctl.
type PathsConfig struct {
	// LockFile is the PID file guarding certificate mutation.
	LockFile string `json:"lockFile" mapstructure:"lockFile" yaml:"lockFile"`

	// CacheDir holds the facts, profile and installed-product caches.
	CacheDir string `json:"cacheDir" mapstructure:"cacheDir" yaml:"cacheDir"`

	// FactsDir holds custom *.facts JSON files.
	FactsDir string `json:"factsDir" mapstructure:"factsDir" yaml:"factsDir"`

	// RepoFile is the generated yum/dnf repository file.
	RepoFile string `json:"repoFile" mapstructure:"repoFile" yaml:"repoFile"`

	// ArchiveDir receives certificates removed after the consumer was deleted.
	ArchiveDir string `json:"archiveDir" mapstructure:"archiveDir" yaml:"archiveDir"`
}

// FactsConfig tunes fact change detection.
type FactsConfig struct {
	// Graylist names facts that are reported but never trigger an upload.
	Graylist []string `json:"graylist" mapstructure:"graylist" yaml:"graylist"`
}

// LogConfig contains logging-related settings.
type LogConfig struct {
	// Timestamps controls whether timestamps are shown in log output.
	// Default: true. Override with --timestamps flag.
	Timestamps *bool `json:"timestamps,omitempty" mapstructure:"timestamps" yaml:"timestamps,omitempty"`
}

// MetricsConfig configures the Prometheus textfile written after each batch.
type MetricsConfig struct {
	// Textfile is the output path. Empty disables metrics.
	Textfile string `json:"textfile" mapstructure:"textfile" yaml:"textfile"`
}

// Config represents the subctl configuration.
// Loaded from /etc/subctl/subctl.yaml, validated against the embedded CUE schema.
type Config struct {
	Server  ServerConfig  `json:"server" mapstructure:"server" yaml:"server"`
	Certs   CertConfig    `json:"certs" mapstructure:"certs" yaml:"certs"`
	Paths   PathsConfig   `json:"paths" mapstructure:"paths" yaml:"paths"`
	Facts   FactsConfig   `json:"facts" mapstructure:"facts" yaml:"facts"`
	Log     LogConfig     `json:"log" mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics" yaml:"metrics"`
}

// DefaultGraylist is the set of facts that change too often to be meaningful.
var DefaultGraylist = []string{"cpu.cpu_mhz", "lscpu.cpu_mhz"}

// DefaultConfig returns a Config with all default values populated.
// Used by `subctl config init` to generate the initial config file.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Hostname:       "subscription.rhsm.redhat.com",
			Port:           443,
			Prefix:         "/subscription",
			CACertDir:      "/etc/rhsm/ca",
			TimeoutSeconds: 180,
		},
		Certs: CertConfig{
			BaseURL:            "https://cdn.redhat.com",
			RepoCACert:         "/etc/rhsm/ca/redhat-uep.pem",
			ProductCertDir:     "/etc/pki/product",
			EntitlementCertDir: "/etc/pki/entitlement",
			ConsumerCertDir:    "/etc/pki/consumer",
			ManageRepos:        true,
		},
		Paths: PathsConfig{
			LockFile:   "/var/run/rhsm/cert.pid",
			CacheDir:   "/var/lib/rhsm",
			FactsDir:   "/etc/rhsm/facts",
			RepoFile:   "/etc/yum.repos.d/redhat.repo",
			ArchiveDir: "/var/lib/rhsm/archive",
		},
		Facts: FactsConfig{
			Graylist: append([]string(nil), DefaultGraylist...),
		},
	}
}
