package auth

import (
	"github.com/spf13/cobra"
)

// AuthCmd - родительская команда для всех операций с авторизацией кассира
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Управление кассиром",
	Long:  `Авторизация, регистрация, выход.`,
}
