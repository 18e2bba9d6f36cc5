package main

import (
	"os"

	"github.com/gocrud/lifetime/cmd/lifetime/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
