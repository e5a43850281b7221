package sale

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"salepoint/cmd/pos/cmd/types"
	"salepoint/internal/app/pos"
	"salepoint/internal/domain/sale"
)

var (
	listLimit  int
	listFormat string
)

var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "Список продаж",
	Long: `Просмотр проведенных продаж, включая еще не синхронизированные.

Колонка SYNC показывает состояние: ✓ — подтверждена сервером,
• — ждет отправки, ✗ — синхронизация не удалась.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, ok := cmd.Context().Value(types.AppKey).(*pos.App)
		if !ok || app == nil {
			return fmt.Errorf("приложение не инициализировано")
		}

		sales, err := app.ListSales(listLimit)
		if err != nil {
			return fmt.Errorf("ошибка получения списка продаж: %w", err)
		}

		if listFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sales)
		}
		return printSalesTable(sales)
	},
}

func printSalesTable(sales []*sale.Sale) error {
	if len(sales) == 0 {
		fmt.Println("Продажи не найдены")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "НОМЕР\tСУММА\tСТАТУС\tSYNC\tДАТА")
	for _, sl := range sales {
		ref := sl.TempID
		if sl.ServerID > 0 {
			ref = fmt.Sprintf("%d", sl.ServerID)
		}

		mark := "•"
		switch {
		case sl.IsSynced:
			mark = "✓"
		case sl.SyncError != "":
			mark = "✗"
		}

		fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\t%s\n",
			ref, float64(sl.Total)/100, sl.Status, mark,
			sl.CreatedAt.Format("2006-01-02 15:04"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nВсего: %d\n", len(sales))
	return nil
}

func init() {
	ListCmd.Flags().IntVarP(&listLimit, "limit", "l", 20, "максимум записей")
	ListCmd.Flags().StringVar(&listFormat, "format", "table", "формат вывода: table, json")
}
