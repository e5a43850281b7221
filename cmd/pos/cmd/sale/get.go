package sale

import (
	"fmt"

	"github.com/spf13/cobra"

	"salepoint/cmd/pos/cmd/types"
	"salepoint/internal/app/pos"
)

var GetCmd = &cobra.Command{
	Use:   "get <ссылка>",
	Short: "Показать продажу",
	Long: `Просмотр продажи по ссылке: временному номеру (offline_...)
или серверному номеру. Обе ссылки ведут к одной записи.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, ok := cmd.Context().Value(types.AppKey).(*pos.App)
		if !ok || app == nil {
			return fmt.Errorf("приложение не инициализировано")
		}

		sl, err := app.GetSale(args[0])
		if err != nil {
			return fmt.Errorf("ошибка получения продажи: %w", err)
		}

		fmt.Printf("Временный номер: %s\n", orDash(sl.TempID))
		if sl.ServerID > 0 {
			fmt.Printf("Серверный номер: %d\n", sl.ServerID)
		} else {
			fmt.Println("Серверный номер: — (еще не синхронизирована)")
		}
		fmt.Printf("Статус: %s\n", sl.Status)
		fmt.Printf("Сумма: %.2f руб.\n", float64(sl.Total)/100)
		fmt.Printf("Дата: %s\n", sl.CreatedAt.Format("2006-01-02 15:04:05"))

		if sl.IsSynced {
			fmt.Println("Синхронизация: ✓ подтверждена сервером")
		} else if sl.SyncError != "" {
			fmt.Printf("Синхронизация: ✗ %s\n", sl.SyncError)
		} else {
			fmt.Println("Синхронизация: • в очереди")
		}

		if len(sl.Items) > 0 {
			fmt.Println("\nПозиции:")
			for _, item := range sl.Items {
				fmt.Printf("  товар %d × %d по %.2f руб.\n",
					item.ProductID, item.Quantity, float64(item.PriceAtSale)/100)
			}
		}

		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
