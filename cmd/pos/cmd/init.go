package cmd

import (
	"salepoint/cmd/pos/cmd/auth"
	"salepoint/cmd/pos/cmd/receipt"
	"salepoint/cmd/pos/cmd/sale"
	"salepoint/cmd/pos/cmd/stock"
	"salepoint/cmd/pos/cmd/sync"
)

func init() {
	// Команды аутентификации
	rootCmd.AddCommand(auth.AuthCmd)
	auth.AuthCmd.AddCommand(auth.RegisterCmd)
	auth.AuthCmd.AddCommand(auth.LoginCmd)
	auth.AuthCmd.AddCommand(auth.LogoutCmd)

	// Команды продаж
	rootCmd.AddCommand(sale.SaleCmd)
	sale.SaleCmd.AddCommand(sale.CreateCmd)
	sale.SaleCmd.AddCommand(sale.ListCmd)
	sale.SaleCmd.AddCommand(sale.GetCmd)

	// Команды остатков
	rootCmd.AddCommand(stock.StockCmd)
	stock.StockCmd.AddCommand(stock.AdjustCmd)
	stock.StockCmd.AddCommand(stock.ListCmd)

	// Команды чеков
	rootCmd.AddCommand(receipt.ReceiptCmd)
	receipt.ReceiptCmd.AddCommand(receipt.ListCmd)
	receipt.ReceiptCmd.AddCommand(receipt.ReprintCmd)

	rootCmd.AddCommand(sync.SyncCmd)
	rootCmd.AddCommand(runCmd)
}
