package stock

import (
	"github.com/spf13/cobra"
)

// StockCmd - родительская команда для операций с остатками
var StockCmd = &cobra.Command{
	Use:   "stock",
	Short: "Управление остатками",
	Long: `Просмотр товаров и корректировка остатков.

Корректировка применяется к локальной копии сразу и уходит на сервер
через очередь синхронизации вместе с ожидаемым итогом.`,
}
