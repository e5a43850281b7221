package auth

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"salepoint/cmd/pos/cmd/types"
	"salepoint/internal/app/pos"
)

var LoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Войти в систему",
	Long: `Аутентификация кассира на сервере SalePoint.

После входа токен сохраняется локально для последующих операций.
Вход нужен только для синхронизации: продажи проводятся и без него.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, ok := cmd.Context().Value(types.AppKey).(*pos.App)
		if !ok || app == nil {
			return fmt.Errorf("приложение не инициализировано")
		}

		fmt.Println("=== Вход в систему ===")
		fmt.Println()

		fmt.Print("Логин: ")
		var login string
		_, _ = fmt.Scanln(&login)

		fmt.Print("Пароль: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("ошибка чтения пароля: %w", err)
		}
		fmt.Println()

		fmt.Println("Аутентификация...")
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		if err := app.Login(ctx, login, string(password)); err != nil {
			return fmt.Errorf("ошибка аутентификации: %w", err)
		}

		fmt.Println()
		fmt.Println("✅ Вход выполнен успешно!")

		// Сразу выталкиваем накопленную очередь
		if n, err := app.PushNow(ctx); err != nil {
			fmt.Printf("⚠️  Предупреждение: очередь не вытолкнута: %v\n", err)
			fmt.Println("Операции останутся в очереди и уйдут при следующей синхронизации")
		} else if n > 0 {
			fmt.Printf("✓ Отправлено операций из очереди: %d\n", n)
		}

		return nil
	},
}
