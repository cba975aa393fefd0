package main

import (
	"context"
	"os"

	"github.com/cryptad/update-releaser/pkg/cli"
)

func main() {
	os.Exit(cli.Run(context.Background(), os.Args))
}
