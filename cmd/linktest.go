// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/thermoline/espresso/pkg/link"
)

var linktestTimeout int

var linktestCmd = &cobra.Command{
	Use:   "linktest",
	Short: "Test a link by waiting for a valid frame",
	Long: `Connect to a Machine or Display Node and wait for any valid frame on the
link, printing its decoded contents. Invalid bytes before the first
resynchronized frame are reported as skipped.

Exit codes:
  0 - a valid frame was received before the timeout
  1 - timeout reached without a valid frame
  2 - connection error`,
	RunE: runLinktest,
}

func init() {
	rootCmd.AddCommand(linktestCmd)
	linktestCmd.Flags().IntVar(&linktestTimeout, "timeout", 10, "timeout in seconds to wait for a frame")
}

func runLinktest(cmd *cobra.Command, args []string) error {
	transport, connInfo, err := OpenTransport()
	if err != nil {
		fmt.Fprintf(os.Stderr, "connection error: %v\n", err)
		os.Exit(2)
	}
	defer transport.Close()

	fmt.Printf("brewlink - link test\n")
	fmt.Printf("connection: %s\n", connInfo)
	fmt.Printf("timeout: %d seconds\n", linktestTimeout)
	fmt.Printf("waiting for a valid frame...\n\n")

	frameChan := make(chan *link.Frame, 1)
	errChan := make(chan error, 1)
	invalidBytes := 0

	go func() {
		assembler := link.NewAssembler()
		buf := make([]byte, link.MaxFrameSize)
		for {
			n, err := transport.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			assembler.Push(buf[:n])
			for {
				frame, decodeErr := assembler.Next()
				if decodeErr != nil {
					invalidBytes += link.HeaderSize // Decode discards one header per error
					continue
				}
				if frame == nil {
					break
				}
				frameChan <- frame
				return
			}
		}
	}()

	select {
	case frame := <-frameChan:
		if invalidBytes > 0 {
			fmt.Printf("(skipped %d invalid bytes before sync)\n", invalidBytes)
		}
		fmt.Printf("SUCCESS: %s\n", link.FormatFrame(frame))
		fmt.Printf("  payload: %s\n", link.FormatPayload(frame))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(linktestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: no valid frame received within %ds\n", linktestTimeout)
		os.Exit(1)
	}

	return nil
}
