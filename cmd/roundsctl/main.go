package main

import (
	"os"

	"github.com/charmbracelet/log"

	"rememberme/api/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		log.Error("roundsctl failed", "err", err)
		os.Exit(1)
	}
}
