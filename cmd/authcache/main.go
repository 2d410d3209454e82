package main

import (
	"os"

	"github.com/shopqa/authcache/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
