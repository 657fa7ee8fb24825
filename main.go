// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// brewlink - espresso-machine controller CLI
//
// A CLI tool for running the Machine Node supervisor loop, the Display Node
// TUI, and the link protocol's bench diagnostics (frame round-trips and
// device scanning).

package main

import (
	"fmt"
	"os"

	"github.com/thermoline/espresso/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
