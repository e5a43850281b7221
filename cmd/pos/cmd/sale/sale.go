package sale

import (
	"github.com/spf13/cobra"
)

// SaleCmd - родительская команда для операций с продажами
var SaleCmd = &cobra.Command{
	Use:   "sale",
	Short: "Управление продажами",
	Long: `Проведение и просмотр продаж.

Продажа проводится локально и сразу печатает чек; отправка на сервер
идет в фоне через очередь синхронизации.`,
}
