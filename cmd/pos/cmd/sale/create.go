package sale

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"salepoint/cmd/pos/cmd/types"
	"salepoint/internal/app/pos"
	"salepoint/internal/domain/sale"
)

var (
	createItems   []string
	createCashier int64
)

var CreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Провести продажу",
	Long: `Проведение продажи. Позиции задаются флагом --item в формате
товар:количество:цена (цена в копейках), флаг повторяется:

  pos sale create --item 7:2:4500 --item 12:1:8900

Продажа сохраняется локально с временным номером и попадает в очередь
синхронизации. Чек печатается сразу.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, ok := cmd.Context().Value(types.AppKey).(*pos.App)
		if !ok || app == nil {
			return fmt.Errorf("приложение не инициализировано")
		}

		if len(createItems) == 0 {
			return fmt.Errorf("не задано ни одной позиции, используйте --item")
		}

		items := make([]sale.SaleItem, 0, len(createItems))
		for _, raw := range createItems {
			item, err := parseItem(raw)
			if err != nil {
				return err
			}
			items = append(items, item)
		}

		sl, err := app.CreateSale(cmd.Context(), createCashier, items)
		if err != nil {
			return fmt.Errorf("ошибка проведения продажи: %w", err)
		}

		fmt.Println("✅ Продажа проведена")
		fmt.Printf("Номер чека: %s\n", sl.TempID)
		fmt.Printf("Сумма: %.2f руб.\n", float64(sl.Total)/100)
		fmt.Printf("Позиций: %d\n", len(sl.Items))
		fmt.Println()
		fmt.Println("Чек напечатан с временным номером. Финальный номер счета")
		fmt.Println("появится после синхронизации с сервером.")

		return nil
	},
}

func parseItem(raw string) (sale.SaleItem, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return sale.SaleItem{}, fmt.Errorf("неверный формат позиции %q, ожидается товар:количество:цена", raw)
	}

	productID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return sale.SaleItem{}, fmt.Errorf("неверный идентификатор товара %q", parts[0])
	}
	quantity, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return sale.SaleItem{}, fmt.Errorf("неверное количество %q", parts[1])
	}
	price, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return sale.SaleItem{}, fmt.Errorf("неверная цена %q", parts[2])
	}

	return sale.SaleItem{ProductID: productID, Quantity: quantity, PriceAtSale: price}, nil
}

func init() {
	CreateCmd.Flags().StringArrayVarP(&createItems, "item", "i", nil, "позиция чека: товар:количество:цена")
	CreateCmd.Flags().Int64Var(&createCashier, "cashier", 0, "идентификатор кассира")
}
