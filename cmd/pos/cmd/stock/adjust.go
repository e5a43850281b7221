package stock

import (
	"fmt"

	"github.com/spf13/cobra"

	"salepoint/cmd/pos/cmd/types"
	"salepoint/internal/app/pos"
)

var (
	adjustProduct int64
	adjustDelta   int64
	adjustReason  string
)

var AdjustCmd = &cobra.Command{
	Use:   "adjust",
	Short: "Скорректировать остаток товара",
	Long: `Корректировка остатка: приемка (положительная дельта) или
списание (отрицательная). Вместе с дельтой на сервер уходит ожидаемый
итог; если фактический остаток на сервере разошелся с ожиданием,
расхождение будет зафиксировано на записи корректировки.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, ok := cmd.Context().Value(types.AppKey).(*pos.App)
		if !ok || app == nil {
			return fmt.Errorf("приложение не инициализировано")
		}

		adj, err := app.AdjustStock(cmd.Context(), adjustProduct, adjustDelta, adjustReason)
		if err != nil {
			return fmt.Errorf("ошибка корректировки остатка: %w", err)
		}

		fmt.Println("✅ Остаток скорректирован")
		fmt.Printf("Номер корректировки: %s\n", adj.TempID)
		fmt.Printf("Товар: %d, дельта: %+d\n", adj.ProductID, adj.Delta)
		fmt.Printf("Ожидаемый остаток: %d\n", adj.ExpectedQuantity)

		return nil
	},
}

func init() {
	AdjustCmd.Flags().Int64VarP(&adjustProduct, "product", "p", 0, "идентификатор товара")
	AdjustCmd.Flags().Int64VarP(&adjustDelta, "delta", "d", 0, "изменение остатка, может быть отрицательным")
	AdjustCmd.Flags().StringVarP(&adjustReason, "reason", "r", "", "причина корректировки")
	AdjustCmd.MarkFlagRequired("product")
	AdjustCmd.MarkFlagRequired("delta")
}
