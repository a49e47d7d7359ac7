package main

import (
	"context"
	"os"

	"github.com/miradorstack/mirador-threatsim/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
