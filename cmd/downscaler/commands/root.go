package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/downscaler/internal/config"
	"github.com/bryanchriswhite/downscaler/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "downscaler",
		Short: "downscaler - Interactive scaled mirror of a desktop window",
		Long: `downscaler shows a live, resizable copy of another application's window
and forwards mouse input on the copy back to the original, so a large
window can be watched and driven from a small one.

Features:
  • Select the source window by title, process name or class
  • Scale by factor, fixed size or one dimension with aspect kept
  • Letterboxed or stretched presentation
  • Mouse input forwarded to the child window under the pointer
  • Re-selects the source when the application recreates its window
  • Web viewer and REST API, plus an MCP server for agents`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(viper.GetString("log_level"), !viper.GetBool("log_json"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/downscaler/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("bind", "", "address the API listens on (default is 127.0.0.1)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "write logs as JSON instead of console text")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("bind_address", rootCmd.PersistentFlags().Lookup("bind"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_json", rootCmd.PersistentFlags().Lookup("log-json"))
	viper.SetEnvPrefix("DOWNSCALER")
	viper.AutomaticEnv()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig opens the config manager and returns its configuration with
// the --port, --bind and --log-level overrides applied. Overrides are not
// saved.
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	if port := viper.GetInt("server_port"); port > 0 {
		cfg.ServerPort = port
	}
	if bind := viper.GetString("bind_address"); bind != "" {
		cfg.BindAddress = bind
	}
	if level := viper.GetString("log_level"); level != "" {
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	// The file's level applies unless the flag overrode it.
	logger.Init(cfg.LogLevel, !viper.GetBool("log_json"))
	return configMgr, cfg, nil
}
