// Package main is the entry point for the wifilab experiment driver.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/wifilab/cmd"
	"firestige.xyz/wifilab/internal/core"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(core.ExitCode(err))
	}
}
