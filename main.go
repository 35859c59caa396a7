package main

import (
	"os"

	"github.com/atspilot/atspilot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
