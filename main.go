package main

import (
	"os"

	"github.com/talentroute/assessd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
