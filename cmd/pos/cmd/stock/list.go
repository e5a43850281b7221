package stock

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"salepoint/cmd/pos/cmd/types"
	"salepoint/internal/app/pos"
)

var showAdjustments bool

var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "Список товаров",
	Long: `Просмотр локальной копии каталога товаров.

С флагом --adjustments вместо каталога выводится журнал корректировок
с признаком расхождения.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, ok := cmd.Context().Value(types.AppKey).(*pos.App)
		if !ok || app == nil {
			return fmt.Errorf("приложение не инициализировано")
		}

		if showAdjustments {
			return printAdjustments(app)
		}
		return printProducts(app)
	},
}

func printProducts(app *pos.App) error {
	products, err := app.ListProducts()
	if err != nil {
		return fmt.Errorf("ошибка получения списка товаров: %w", err)
	}
	if len(products) == 0 {
		fmt.Println("Каталог пуст. Выполните синхронизацию: pos sync")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tНАЗВАНИЕ\tЦЕНА\tОСТАТОК")
	for _, p := range products {
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%d\n",
			p.ServerID, p.Name, float64(p.Price)/100, p.Quantity)
	}
	return w.Flush()
}

func printAdjustments(app *pos.App) error {
	adjustments, err := app.ListAdjustments(50)
	if err != nil {
		return fmt.Errorf("ошибка получения журнала корректировок: %w", err)
	}
	if len(adjustments) == 0 {
		fmt.Println("Корректировок нет")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "НОМЕР\tТОВАР\tДЕЛЬТА\tОЖИДАНИЕ\tSYNC\tРАСХОЖДЕНИЕ")
	for _, adj := range adjustments {
		mark := "•"
		switch {
		case adj.IsSynced:
			mark = "✓"
		case adj.SyncError != "":
			mark = "✗"
		}

		disc := "—"
		if adj.HasDiscrepancy {
			disc = fmt.Sprintf("ожидалось %d, на сервере %d",
				adj.DiscrepancyExpect, adj.DiscrepancyActual)
		}

		fmt.Fprintf(w, "%s\t%d\t%+d\t%d\t%s\t%s\n",
			adj.TempID, adj.ProductID, adj.Delta, adj.ExpectedQuantity, mark, disc)
	}
	return w.Flush()
}

func init() {
	ListCmd.Flags().BoolVar(&showAdjustments, "adjustments", false, "показать журнал корректировок")
}
