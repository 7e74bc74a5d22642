package main

import (
	"os"

	"factmill/manager-go/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args))
}
