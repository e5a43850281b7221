package receipt

import (
	"github.com/spf13/cobra"
)

// ReceiptCmd - родительская команда для операций с напечатанными чеками
var ReceiptCmd = &cobra.Command{
	Use:   "receipt",
	Short: "Управление чеками",
	Long: `Чеки, напечатанные до синхронизации, несут временный номер.
После подтверждения продажи сервером чек получает финальный номер
счета и может быть перепечатан.`,
}
