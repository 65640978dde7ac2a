package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"web-task-agent/internal/bootstrap"
	"web-task-agent/internal/console"
)

func main() {
	args := os.Args[1:]

	if len(args) == 0 {
		prog := filepath.Base(os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s \"<task description>\"\n\n", prog)
		fmt.Fprintf(os.Stderr, "Example:\n  %s \"Find a wireless mouse and add it to the cart\"\n", prog)
		os.Exit(console.ExitUsage)
	}

	task := strings.Join(args, " ")

	bootstrap.NewApp(task).Run()
}
