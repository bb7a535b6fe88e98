package main

import (
	"os"

	"github.com/Rohianon/ptracker/cmd/ptracker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
