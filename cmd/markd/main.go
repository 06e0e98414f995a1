package main

import (
	"context"
	"fmt"
	"os"

	"github.com/MrSnakeDoc/markd/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ markd: %v\n", err)
		os.Exit(1)
	}
}
