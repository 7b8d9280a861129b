package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jittakal/gctrace/internal/cmd"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cmd.NewRoot(version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "gctrace: %v\n", err)
		os.Exit(1)
	}
}
