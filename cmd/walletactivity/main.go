package main

import "wallet-activity/internal/cli"

func main() {
	cli.Execute()
}
