package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/tillberg/autorestart"

	"github.com/HuxJiang/ai-agent-platform/internal/cli"
)

func main() {
	if os.Getenv("AGENTHUB_AUTORESTART") == "1" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}
