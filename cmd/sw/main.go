package main

import (
	"os"

	"github.com/mvetter/stewardflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
