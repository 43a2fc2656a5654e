package main

import (
	"os"

	"github.com/hiroki-koketsu/taskdrop/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
