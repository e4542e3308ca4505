package cmd

import (
	"github.com/michaelpento.lv/dexarb/cmd/bot"
	"github.com/michaelpento.lv/dexarb/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start polling both exchanges and trading the configured pair",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := setup(cmd)
		defer utils.CleanupLogger()

		ctx := cmd.Context()
		b, err := bot.New(ctx, cfg, log)
		if err != nil {
			log.Fatal("Failed to create bot", zap.Error(err))
		}

		if err := b.Start(ctx); err != nil {
			b.Close()
			log.Fatal("Failed to start bot", zap.Error(err))
		}

		<-ctx.Done()
		log.Info("Shutting down gracefully...")
		b.Stop()
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
