package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// configPath is the --config flag shared by every command.
var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wakeproxy",
	Short: "Reverse proxy that starts docker compose backends on demand",
	Long: `wakeproxy forwards requests to docker compose backends and starts a
stopped backend the first time a request for it arrives. Backends that
have been idle longer than the configured threshold are stopped again.`,
	// Errors are reported by the commands themselves.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "wakeproxy version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file, JSON or YAML (default $WAKEPROXY_CONFIG or config.json)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newVersionCmd())
}
