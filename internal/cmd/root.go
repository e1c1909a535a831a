// Package cmd provides CLI command implementations.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	configcmd "github.com/opmodel/subctl/internal/cmd/config"
	"github.com/opmodel/subctl/internal/cmdtypes"
	"github.com/opmodel/subctl/internal/config"
	oerrors "github.com/opmodel/subctl/internal/errors"
	"github.com/opmodel/subctl/internal/output"
	"github.com/opmodel/subctl/internal/version"
)

// NewRootCmd creates the root command for subctl.
func NewRootCmd() *cobra.Command {
	cfg := &cmdtypes.GlobalConfig{}

	var (
		configFlag     string
		verboseFlag    bool
		timestampsFlag bool
	)

	rootCmd := &cobra.Command{
		Use:   "subctl",
		Short: "Subscription and entitlement client",
		Long: `subctl keeps this system's entitlement certificates, facts, package
profile and repository definitions in step with the entitlement server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			return initializeGlobals(c, cfg, configFlag, verboseFlag, timestampsFlag)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to config file (env: SUBCTL_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&timestampsFlag, "timestamps", true, "Show timestamps in log output")

	rootCmd.AddCommand(
		NewRefreshCmd(cfg),
		NewAttachCmd(cfg),
		NewHealCmd(cfg),
		NewFactsCmd(cfg),
		NewListCmd(cfg),
		NewReposCmd(cfg),
		NewIdentityCmd(cfg),
		configcmd.NewConfigCmd(cfg),
		NewVersionCmd(cfg),
	)

	return rootCmd
}

// initializeGlobals loads configuration and sets up logging.
func initializeGlobals(c *cobra.Command, cfg *cmdtypes.GlobalConfig, configFlag string, verbose, timestamps bool) error {
	cfg.Verbose = verbose
	cfg.ConfigPath = configFlag
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = config.GetConfigFile()
	}

	loaded, err := config.NewLoader().Load(cfg.ConfigPath)
	if err != nil {
		return &oerrors.ExitError{
			Code: cmdtypes.ExitValidationError,
			Err:  fmt.Errorf("loading config %s: %w", cfg.ConfigPath, err),
		}
	}
	cfg.Config = loaded

	// Timestamps: flag (if explicitly set) > config > default (nil = true)
	logCfg := output.LogConfig{Verbose: verbose}
	if c.Flags().Changed("timestamps") {
		logCfg.Timestamps = output.BoolPtr(timestamps)
	} else if loaded.Log.Timestamps != nil {
		logCfg.Timestamps = loaded.Log.Timestamps
	}
	output.SetupLogging(logCfg)

	info := version.Get()
	output.Debug("subctl started",
		"version", info.Version,
		"config", cfg.ConfigPath,
		"server", loaded.Server.Hostname,
	)
	return nil
}
