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

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the wallet's native and pair token balances",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := setup(cmd)
		defer utils.CleanupLogger()

		ctx := cmd.Context()
		b, err := bot.New(ctx, cfg, log)
		if err != nil {
			log.Fatal("Failed to create bot", zap.Error(err))
		}
		defer b.Close()

		owner := b.Wallet.Address()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "wallet %s\n", owner.Hex())

		tokens := []types.Token{types.Ether}
		for _, tok := range []types.Token{b.Pair.Input, b.Pair.Intermediate} {
			if !tok.IsNative() {
				tokens = append(tokens, tok)
			}
		}
		for _, tok := range tokens {
			balance, err := b.ERC20.BalanceOf(ctx, tok, owner)
			if err != nil {
				log.Fatal("Failed to read balance", zap.Stringer("token", tok), zap.Error(err))
			}
			fmt.Fprintf(out, "%-8s %s\n", tok, reporter.FormatUnits(balance, tok.Decimals))
		}
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}
