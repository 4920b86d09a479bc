package main

import (
	"fmt"
	"os"

	"github.com/wasmind-run/fabric/cmd/fabricctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
