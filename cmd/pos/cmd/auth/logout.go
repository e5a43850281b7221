package auth

import (
	"fmt"

	"github.com/spf13/cobra"

	"salepoint/cmd/pos/cmd/types"
	"salepoint/internal/app/pos"
)

var LogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Выйти из системы",
	Long: `Удаляет сохраненный токен сессии.

Локальные данные и очередь синхронизации не трогаются: после
повторного входа накопленные операции уйдут на сервер.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, ok := cmd.Context().Value(types.AppKey).(*pos.App)
		if !ok || app == nil {
			return fmt.Errorf("приложение не инициализировано")
		}

		if err := app.Logout(); err != nil {
			return fmt.Errorf("ошибка выхода: %w", err)
		}

		fmt.Println("✅ Выход выполнен. Токен удален.")
		return nil
	},
}
