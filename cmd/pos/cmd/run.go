package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"salepoint/internal/app/pos"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Запустить фоновый цикл синхронизации",
	Long: `Команда run держит кассу в рабочем режиме: очередь операций
периодически выталкивается на сервер, входящие изменения подтягиваются
по своему интервалу. Останавливается по SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		driver := pos.NewDriver(app, log,
			time.Duration(cfg.PushInterval)*time.Second,
			time.Duration(cfg.PullInterval)*time.Second)

		fmt.Println("Цикл синхронизации запущен. Ctrl+C для остановки.")
		if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
