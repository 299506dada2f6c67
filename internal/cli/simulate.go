package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"wallet-activity/internal/app"
)

var (
	simulateAddress string
	simulateAmount  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一笔存款并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateAmount <= 0 {
			return errors.New("--amount 必须大于 0")
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Address: simulateAddress,
			Amount:  decimal.NewFromFloat(simulateAmount),
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateAddress, "address", "", "钱包地址")
	simulateCmd.Flags().Float64Var(&simulateAmount, "amount", 100, "模拟存款金额")
	_ = simulateCmd.MarkFlagRequired("address")
}
