package main

import (
	"os"

	"github.com/rkoyama/glmbot/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
