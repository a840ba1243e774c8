package main

import (
	"os"

	"github.com/norncorp/mimir/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
