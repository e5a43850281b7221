package receipt

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"salepoint/cmd/pos/cmd/types"
	"salepoint/internal/app/pos"
)

var listStatus string

var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "Список чеков",
	Long: `Просмотр напечатанных чеков. Флаг --status фильтрует по
состоянию: pending_update, updated, reprinted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, ok := cmd.Context().Value(types.AppKey).(*pos.App)
		if !ok || app == nil {
			return fmt.Errorf("приложение не инициализировано")
		}

		receipts, err := app.ListReceipts(listStatus)
		if err != nil {
			return fmt.Errorf("ошибка получения списка чеков: %w", err)
		}
		if len(receipts) == 0 {
			fmt.Println("Чеки не найдены")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tВРЕМЕННЫЙ НОМЕР\tФИНАЛЬНЫЙ НОМЕР\tСТАТУС\tНАПЕЧАТАН")
		for _, r := range receipts {
			final := r.FinalInvoiceNumber
			if final == "" {
				final = "—"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				r.ID, r.PrintedNumber, final, r.Status,
				r.PrintedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	ListCmd.Flags().StringVar(&listStatus, "status", "", "фильтр по статусу чека")
}
