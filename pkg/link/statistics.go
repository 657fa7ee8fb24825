// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"time"
)

// Statistics tracks frame counts and error rates for a link connection, for
// CLI/TUI display.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	TotalFrames  uint64
	ValidFrames  uint64
	ProtoErrors  uint64
	AnomalousVal uint64

	FrameRate float64
	ErrorRate float64
}

// NewStatistics creates a tracker starting now.
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{StartTime: now, LastUpdateTime: now}
}

// Update records one decode attempt's outcome.
func (s *Statistics) Update(decodeErr error, validationErrors []ValidationError) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		s.ProtoErrors++
		return
	}
	if len(validationErrors) > 0 {
		s.AnomalousVal += uint64(len(validationErrors))
		return
	}
	s.ValidFrames++
}

// CalculateRates recomputes FrameRate/ErrorRate from elapsed wall time.
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed <= 0 {
		return
	}
	s.FrameRate = float64(s.TotalFrames) / elapsed
	s.ErrorRate = float64(s.ProtoErrors+s.AnomalousVal) / elapsed
}

// String renders a human-readable summary, in the teacher's plain
// multi-line report style.
func (s *Statistics) String() string {
	s.CalculateRates()
	elapsed := time.Since(s.StartTime)

	out := fmt.Sprintf("=== Link Statistics (%.0fs) ===\n", elapsed.Seconds())
	out += fmt.Sprintf("Total Frames:  %8d\n", s.TotalFrames)
	out += fmt.Sprintf("Valid Frames:  %8d\n", s.ValidFrames)
	if s.ProtoErrors > 0 {
		out += fmt.Sprintf("Proto Errors:  %8d\n", s.ProtoErrors)
	}
	if s.AnomalousVal > 0 {
		out += fmt.Sprintf("Anomalies:     %8d\n", s.AnomalousVal)
	}
	out += fmt.Sprintf("Frame Rate:    %8.1f fps\n", s.FrameRate)
	out += fmt.Sprintf("Error Rate:    %8.1f eps\n", s.ErrorRate)
	return out
}

// Reset zeroes all counters and restarts the elapsed-time clock.
func (s *Statistics) Reset() {
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.TotalFrames = 0
	s.ValidFrames = 0
	s.ProtoErrors = 0
	s.AnomalousVal = 0
	s.FrameRate = 0
	s.ErrorRate = 0
}
