package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates the root command for the featurehost application
func NewRootCommand() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "featurehost",
		Short: "Feature host - activates features and runs their startup tasks",
		Long: `featurehost resolves the built-in features against an optional activation
file and the environment, sets them up, starts their startup tasks and stops
them again on SIGINT or SIGTERM.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "activation file (.yaml, .yml, .toml or .json)")
	flags.StringVar(&opts.EnvPrefix, "env-prefix", "FEATUREHOST", "prefix of environment overrides")
	flags.StringVar(&opts.Listen, "listen", "", "status API listen address (enables the status API)")
	flags.StringVar(&opts.LogLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringSliceVar(&opts.Enable, "enable", nil, "features to enable explicitly")
	flags.StringSliceVar(&opts.Disable, "disable", nil, "features to disable explicitly")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewFeaturesCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewVersionCommand prints version information
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}

// PrintVersion returns version information
func PrintVersion() string {
	return fmt.Sprintf("featurehost v%s (commit: %s, built on: %s)", Version, Commit, Date)
}
