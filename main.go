package main

import (
	"os"

	"github.com/anaconda/sisyphus/pkg/cmd"
	"github.com/anaconda/sisyphus/pkg/cmd/cmderrors"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

func main() {
	defer breverrors.GetDefaultErrorReporter().Setup()()

	command := cmd.NewDefaultSisyphusCommand()

	if err := command.Execute(); err != nil {
		cmderrors.DisplayAndHandleError(err)
		os.Exit(1)
	}
}
