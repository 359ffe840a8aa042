package main

import (
	"os"

	"github.com/firefly-engineering/simrun/cmd"
	"github.com/firefly-engineering/simrun/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(errors.GetExitCode(err))
	}
}
