package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	root := newRootCommand(productionBackend())
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
