// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Global connection flags, shared by every subcommand that opens a
	// link.Transport (machine, display, linktest, scan).
	portName string
	baudRate int

	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "brewlink",
	Short: "Espresso-machine controller link CLI",
	Long: `brewlink - Machine Node / Display Node controller and bench tooling.

Provides commands for running the Machine Node supervisor loop against a
simulated hardware backend, the Display Node's interactive TUI, and the
link protocol's bench diagnostics (frame round-trips and device scanning).`,
	Version: "1.0.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate")
	rootCmd.PersistentFlags().StringVar(&wsURL, "url", "", "WebSocket bridge URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "ws-user", "", "WebSocket basic-auth username")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification for wss://")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
