package main

import (
	"fmt"
	"os"

	"github.com/tagocm/ERP-DESDOBRA-sub001/cmd/nfe-emitter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
