package cmd

import (
	"fmt"

	"github.com/michaelpento.lv/dexarb/cmd/bot"
	"github.com/michaelpento.lv/dexarb/reporter"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Fetch one set of quotes and print both arbitrage scores",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := setup(cmd)
		defer utils.CleanupLogger()

		ctx := cmd.Context()
		b, err := bot.New(ctx, cfg, log)
		if err != nil {
			log.Fatal("Failed to create bot", zap.Error(err))
		}
		defer b.Close()

		q, err := b.Evaluator.FetchQuotes(ctx)
		if err != nil {
			log.Fatal("Failed to fetch quotes", zap.Error(err))
		}
		opp, ok := b.Evaluator.Score(q)

		out := cmd.OutOrStdout()
		for _, rate := range []types.ExchangeRate{q.BuyX, q.SellX, q.BuyY, q.SellY} {
			fmt.Fprintf(out, "%-12s %s %s -> %s %s\n",
				rate.Exchange,
				reporter.FormatUnits(rate.AmountIn, rate.TokenIn.Decimals), rate.TokenIn,
				reporter.FormatUnits(rate.AmountOut, rate.TokenOut.Decimals), rate.TokenOut,
			)
		}
		fmt.Fprintf(out, "score %s: %s\n", types.XToY, opp.ProfitXToY)
		fmt.Fprintf(out, "score %s: %s\n", types.YToX, opp.ProfitYToX)

		if _, _, err := b.Gas.SuggestFees(ctx); err != nil {
			log.Warn("Failed to fetch fees", zap.Error(err))
		} else {
			cost := b.Gas.EstimateGasCost(b.Gas.EstimateArbitrageGas(2))
			fmt.Fprintf(out, "gas for both legs: ~%s ETH\n", reporter.FormatUnits(cost, types.Ether.Decimals))
		}

		if !ok {
			fmt.Fprintln(out, "no profitable direction")
			return
		}
		fmt.Fprintf(out, "opportunity: buy on %s, sell on %s\n", opp.BuyExchange, opp.SellExchange)
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}
