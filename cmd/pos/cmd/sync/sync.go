package sync

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"salepoint/cmd/pos/cmd/types"
	"salepoint/internal/app/pos"
)

var (
	showStatus  bool
	showQueue   string
	retryID     int64
	retryFailed bool
	fullResync  bool
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Управление синхронизацией",
	Long: `Синхронизация кассы с сервером.

Без флагов выполняет полный проход: выталкивает очередь операций
и подтягивает входящие изменения. Флаги позволяют посмотреть статус,
содержимое очереди и вернуть неудавшиеся операции в работу.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, ok := cmd.Context().Value(types.AppKey).(*pos.App)
		if !ok || app == nil {
			return fmt.Errorf("приложение не инициализировано")
		}

		switch {
		case showStatus:
			return printStatus(cmd, app)
		case showQueue != "-":
			return printQueue(app, showQueue)
		case retryID > 0:
			return retryOne(app, retryID)
		case retryFailed:
			return retryAll(app)
		case fullResync:
			return runFullResync(cmd, app)
		default:
			return runSync(cmd, app)
		}
	},
}

func runSync(cmd *cobra.Command, app *pos.App) error {
	fmt.Println("=== Синхронизация ===")
	start := time.Now()

	pushed, err := app.PushNow(cmd.Context())
	if err != nil {
		return fmt.Errorf("ошибка отправки очереди: %w", err)
	}

	if err := app.PullNow(cmd.Context()); err != nil {
		return fmt.Errorf("ошибка получения изменений: %w", err)
	}

	fmt.Println()
	color.Green("✅ Синхронизация завершена за %v", time.Since(start).Round(time.Millisecond))
	fmt.Printf("Отправлено операций: %d\n", pushed)
	return nil
}

func runFullResync(cmd *cobra.Command, app *pos.App) error {
	fmt.Println("=== Полная повторная синхронизация ===")
	fmt.Println("Отметки пулла сброшены, изменения будут получены заново.")

	if err := app.FullResync(cmd.Context()); err != nil {
		return fmt.Errorf("ошибка повторной синхронизации: %w", err)
	}

	color.Green("✅ Повторная синхронизация завершена")
	return nil
}

func printStatus(cmd *cobra.Command, app *pos.App) error {
	status, err := app.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("ошибка получения статуса: %w", err)
	}

	fmt.Println("=== Статус синхронизации ===")
	fmt.Println()

	fmt.Printf("Сервер: ")
	if status.ServerOnline {
		color.Green("доступен")
	} else {
		color.Red("недоступен (операции копятся в очереди)")
	}

	fmt.Println("\nОчередь операций:")
	fmt.Printf("  Ожидают отправки: %s\n", colorCount(status.Pending, color.FgYellow))
	fmt.Printf("  В обработке:      %d\n", status.Processing)
	fmt.Printf("  Завершено:        %s\n", colorCount(status.Completed, color.FgGreen))
	fmt.Printf("  Неудачных:        %s\n", colorCount(status.Failed, color.FgRed))

	if status.LastSyncedAt != nil {
		fmt.Printf("\nПоследняя успешная отправка: %s\n",
			status.LastSyncedAt.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("\nУспешных отправок еще не было")
	}

	if status.Failed > 0 {
		fmt.Println()
		color.Yellow("Есть неудавшиеся операции. Посмотрите их: pos sync --queue failed")
		color.Yellow("и верните в работу: pos sync --retry-failed")
	}
	return nil
}

func colorCount(n int, attr color.Attribute) string {
	if n == 0 {
		return "0"
	}
	return color.New(attr).Sprintf("%d", n)
}

func printQueue(app *pos.App, status string) error {
	items, err := app.QueueItems(status)
	if err != nil {
		return fmt.Errorf("ошибка чтения очереди: %w", err)
	}
	if len(items) == 0 {
		fmt.Println("Очередь пуста")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tОПЕРАЦИЯ\tСУЩНОСТЬ\tСТАТУС\tПОПЫТКИ\tОШИБКА")
	for _, item := range items {
		errMsg := item.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:40] + "..."
		}
		fmt.Fprintf(w, "%d\t%s\t%s %s\t%s\t%d/%d\t%s\n",
			item.ID, item.Operation, item.Entity, item.EntityID,
			item.Status, item.Attempts, item.MaxAttempts, errMsg)
	}
	return w.Flush()
}

func retryOne(app *pos.App, id int64) error {
	if err := app.RetryItem(id); err != nil {
		return fmt.Errorf("ошибка повторной постановки: %w", err)
	}
	color.Green("✅ Операция %d возвращена в очередь", id)
	fmt.Println("Отправка пойдет со старым ключом идемпотентности.")
	return nil
}

func retryAll(app *pos.App) error {
	n, err := app.RetryAllFailed()
	if err != nil {
		return fmt.Errorf("ошибка повторной постановки: %w", err)
	}
	if n == 0 {
		fmt.Println("Неудавшихся операций нет")
		return nil
	}
	color.Green("✅ Возвращено в очередь операций: %d", n)
	return nil
}

func init() {
	SyncCmd.Flags().BoolVar(&showStatus, "status", false, "показать статус синхронизации")
	SyncCmd.Flags().StringVar(&showQueue, "queue", "-", "показать очередь, опционально с фильтром по статусу")
	SyncCmd.Flags().Lookup("queue").NoOptDefVal = ""
	SyncCmd.Flags().Int64Var(&retryID, "retry", 0, "вернуть операцию в очередь по идентификатору")
	SyncCmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "вернуть все неудавшиеся операции в очередь")
	SyncCmd.Flags().BoolVar(&fullResync, "full-resync", false, "сбросить отметки и получить все изменения заново")
}

