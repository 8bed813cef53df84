package main

import (
	"os"

	"backup-timeline/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
