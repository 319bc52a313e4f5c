// Package main provides the envrun CLI application.
// It provisions, runs and snapshots Python application environments
// described by a YAML configuration file.
package main

import (
	"log"
	"os"

	"github.com/envrun-project/envrun/internal/cli"
)

func main() {
	app := cli.NewApp()

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
