package main

import (
	"os"

	"lora-console/cmd/lora-console/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
