package cmd

import (
	"context"
	"fmt"

	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "arbbot",
	Short: "A CLI bot for two-exchange arbitrage on Uniswap V2 forks",
	Long: `A CLI bot that polls Uniswap V2 and Sushiswap for one token pair and,
when the round trip between them pays more than the estimated cost, buys on
the cheaper exchange and sells on the dearer one.`,
	SilenceUsage: true,
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/"+config.DefaultConfigName+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "report opportunities without sending transactions")
}

// loadConfig reads .env, the config file and the environment, in that order of
// precedence from lowest to highest, then applies command line flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = dryRun
	}
	cfg.Debug = cfg.Debug || debug

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setup loads the config and builds the logger, exiting on a bad config
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger) {
	cfg, err := loadConfig(cmd)
	log := utils.InitLogger(debug || (cfg != nil && cfg.Debug))
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}
	return cfg, log
}
