package main

import (
	"os"

	"github.com/bryan-buckman/spacetraveling/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
