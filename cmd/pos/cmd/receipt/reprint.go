package receipt

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"salepoint/cmd/pos/cmd/types"
	"salepoint/internal/app/pos"
)

var ReprintCmd = &cobra.Command{
	Use:   "reprint <id>",
	Short: "Перепечатать чек с финальным номером",
	Long: `Перепечатка чека после получения финального номера счета.

Чек в состоянии pending_update перепечатать нельзя: дождитесь
синхронизации продажи. Повторная перепечатка допустима.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, ok := cmd.Context().Value(types.AppKey).(*pos.App)
		if !ok || app == nil {
			return fmt.Errorf("приложение не инициализировано")
		}

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("неверный идентификатор чека %q", args[0])
		}

		r, err := app.ReprintReceipt(id)
		if err != nil {
			return fmt.Errorf("ошибка перепечатки: %w", err)
		}

		fmt.Println("✅ Чек перепечатан")
		fmt.Printf("Финальный номер счета: %s\n", r.FinalInvoiceNumber)
		fmt.Printf("Исходный временный номер: %s\n", r.PrintedNumber)
		return nil
	},
}
