package main

import (
	"os"

	"github.com/wesleyorama2/hello-load/internal/cli"
)

// Main runs the CLI and returns the process exit code.
func Main() int {
	return cli.Execute()
}

func main() {
	os.Exit(Main())
}
