package main

import (
	_ "embed"
	"strings"

	"github.com/seuros/mfdash/internal/cli"
	"github.com/seuros/mfdash/internal/logging"
)

//go:embed VERSION
var versionFile string

var executeCLI = cli.Execute

func run() error {
	return executeCLI(strings.TrimSpace(versionFile))
}

func main() {
	if err := run(); err != nil {
		logging.Fatal("mfdash execution failed", "error", err)
	}
}
