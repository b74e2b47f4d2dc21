package main

import (
	"os"

	"github.com/pipguard/pipguard/cmd/pipguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
