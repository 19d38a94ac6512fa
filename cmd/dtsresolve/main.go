package main

import (
	"os"

	"dtsresolve/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
