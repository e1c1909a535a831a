// Package main is the entry point for the subctl CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/opmodel/subctl/internal/cmd"
	"github.com/opmodel/subctl/internal/cmdtypes"
)

func main() {
	rootCmd := cmd.NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		var exitErr *cmdtypes.ExitError
		if errors.As(err, &exitErr) {
			// Only print if the command layer hasn't already printed it
			if !exitErr.Printed {
				fmt.Fprintln(os.Stderr, err)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cmdtypes.ExitCodeFromServerError(err))
	}
}
