package main

import (
	"os"

	"github.com/todosafe/todosafe/internal/cli"
)

func main() {
	code := cli.Run(os.Args, os.Stdout, os.Stderr)
	os.Exit(code)
}
