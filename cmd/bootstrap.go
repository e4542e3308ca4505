package cmd

import (
	"fmt"

	"github.com/michaelpento.lv/dexarb/cmd/bot"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/executor"
	"github.com/michaelpento.lv/dexarb/reporter"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var bootstrapAmount string

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Swap native ETH into the input token on exchange X",
	Long: `Funds a fresh wallet by swapping native ETH into the configured input
token through exchange X, using the same slippage and deadline bounds as a
trading leg.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := setup(cmd)
		defer utils.CleanupLogger()

		if cmd.Flags().Changed("amount") {
			cfg.BootstrapAmount = bootstrapAmount
		}
		amount, err := cfg.BootstrapAmountWei()
		if err != nil {
			log.Fatal("Invalid bootstrap amount", zap.Error(err))
		}

		ctx := cmd.Context()
		b, err := bot.New(ctx, cfg, log)
		if err != nil {
			log.Fatal("Failed to create bot", zap.Error(err))
		}
		defer b.Close()

		if b.Pair.Input.IsNative() {
			log.Fatal("Input token is already the native asset, nothing to bootstrap")
		}

		params, err := b.Params.Build(ctx, b.ExchangeX, types.Ether, b.Pair.Input, amount)
		if err != nil {
			log.Fatal("Failed to build trade parameters", zap.Error(err))
		}

		receipt, err := b.Swaps.Swap(ctx, executor.SwapRequest{
			Exchange: b.ExchangeX.GetName(),
			Router:   b.ExchangeX.GetRouterAddress(),
			TokenIn:  types.Ether,
			TokenOut: b.Pair.Input,
			Params:   params,
		})
		if err != nil {
			log.Fatal("Bootstrap swap failed", zap.Error(err))
		}

		balance, err := b.ERC20.BalanceOf(ctx, b.Pair.Input, b.Wallet.Address())
		if err != nil {
			log.Fatal("Failed to read balance", zap.Error(err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "swapped %s ETH in %s, %s balance %s\n",
			reporter.FormatUnits(amount, types.Ether.Decimals),
			receipt.TxHash.Hex(),
			b.Pair.Input,
			reporter.FormatUnits(balance, b.Pair.Input.Decimals),
		)
	},
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)
	bootstrapCmd.Flags().StringVar(&bootstrapAmount, "amount", config.DefaultConfig().BootstrapAmount, "native amount to swap, in ETH")
}
