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

var scanTimeout int

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover a Machine Node by waiting for its SystemInfo handshake",
	Long: `Connect to a Machine Node and wait for the SystemInfo frame it must send
within SystemInfoDeadline of a fresh connection (spec §4.7), printing its
reported hardware identifier, firmware version, and capabilities.

Unlike a broadcast discovery protocol, the link is point-to-point: scan
simply confirms a Machine Node is alive on the other end of the given
transport and reports what it claims to support.

Exit codes:
  0 - SystemInfo received before the timeout
  1 - timeout reached without SystemInfo
  2 - connection error`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 5, "timeout in seconds to wait for SystemInfo")
}

func runScan(cmd *cobra.Command, args []string) error {
	transport, connInfo, err := OpenTransport()
	if err != nil {
		fmt.Fprintf(os.Stderr, "connection error: %v\n", err)
		os.Exit(2)
	}
	defer transport.Close()

	fmt.Printf("brewlink - scan\n")
	fmt.Printf("connection: %s\n", connInfo)
	fmt.Printf("timeout: %d seconds\n\n", scanTimeout)

	infoChan := make(chan link.SystemInfo, 1)
	errChan := make(chan error, 1)

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
					continue
				}
				if frame == nil {
					break
				}
				if frame.Type != link.MsgSystemInfo {
					continue
				}
				info, err := link.DecodeSystemInfo(frame.Payload)
				if err != nil {
					continue
				}
				infoChan <- info
				return
			}
		}
	}()

	select {
	case info := <-infoChan:
		fmt.Printf("Machine Node found:\n")
		fmt.Printf("  Hardware:     %s\n", info.Hardware)
		fmt.Printf("  Version:      %s\n", info.Version)
		fmt.Printf("  Dimming:      %v\n", info.Capabilities.Dimming)
		fmt.Printf("  Pressure:     %v\n", info.Capabilities.Pressure)
		fmt.Printf("  LED control:  %v\n", info.Capabilities.LedControl)
		fmt.Printf("  ToF:          %v\n", info.Capabilities.Tof)
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(scanTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: no SystemInfo received within %ds\n", scanTimeout)
		os.Exit(1)
	}

	return nil
}
