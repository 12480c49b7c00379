package main

import (
	"os"

	"github.com/kartlab/kartbench/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
