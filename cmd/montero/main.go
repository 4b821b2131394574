package main

import (
	"os"

	"montero/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
