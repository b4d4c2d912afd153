package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/tillberg/autorestart"

	"github.com/soyeahso/gaia/internal/cli"
)

func main() {
	// Development builds restart themselves when the binary is rebuilt.
	if v := os.Getenv("DEVELOPMENT"); strings.EqualFold(v, "true") || v == "1" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gaia:", err)
		os.Exit(1)
	}
}
