package main

import "salepoint/cmd/pos/cmd"

func main() {
	cmd.Execute()
}
