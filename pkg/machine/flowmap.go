// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package machine

// FlowMap converts (rpm, pressureBar) to pump-available flow in ml/min
// using a 2-D calibration table, ported from the source's FlowMap (spec
// §4.3). Both axes are clamped to range before indexing; the pressure
// index is kept at most NumPressure-2 so its neighbour is always in
// bounds.
type FlowMap struct{}

const (
	numRPM      = 10
	numPressure = 17
)

var rpmAxis = [numRPM]float32{600, 1000, 1500, 2000, 2500, 3000, 3500, 4000, 4500, 5000}

var pressureAxis = [numPressure]float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

// flowTable[pressureIndex][rpmIndex], ml/min. Leading zeros in a row are a
// true stall (no flow); trailing zeros are missing/unreachable data and
// must clamp to the last positive value rather than drag interpolation to
// zero (spec §4.3).
var flowTable = [numPressure][numRPM]float32{
	{216, 372, 556, 726, 909, 1102, 1302, 1486, 1666, 1798}, // 0 bar
	{78, 252, 448, 636, 830, 1020, 1218, 1404, 1600, 1755},  // 1 bar
	{0, 166, 350, 553, 746, 948, 1138, 1336, 1530, 0},       // 2 bar
	{0, 75, 266, 474, 668, 872, 1062, 1262, 1460, 0},        // 3 bar
	{0, 18, 198, 401, 606, 808, 1004, 1208, 1408, 0},        // 4 bar
	{0, 0, 120, 338, 548, 756, 944, 1162, 1360, 0},          // 5 bar
	{0, 0, 66, 284, 492, 704, 884, 1108, 0, 0},              // 6 bar
	{0, 0, 28, 226, 432, 642, 834, 1042, 0, 0},              // 7 bar
	{0, 0, 0, 172, 381, 590, 784, 990, 0, 0},                // 8 bar
	{0, 0, 0, 118, 334, 544, 733, 954, 0, 0},                // 9 bar
	{0, 0, 0, 79, 292, 494, 690, 0, 0, 0},                   // 10 bar
	{0, 0, 0, 38, 250, 454, 640, 0, 0, 0},                   // 11 bar
	{0, 0, 0, 0, 208, 420, 602, 0, 0, 0},                    // 12 bar
	{0, 0, 0, 0, 166, 384, 0, 0, 0, 0},                      // 13 bar
	{0, 0, 0, 0, 132, 344, 0, 0, 0, 0},                      // 14 bar
	{0, 0, 0, 0, 102, 0, 0, 0, 0, 0},                        // 15 bar
	{0, 0, 0, 0, 76, 0, 0, 0, 0, 0},                         // 16 bar
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// firstPositiveIndex returns the first rpm-axis index with flow > 0 in the
// given pressure row, or -1 if the row is all zero.
func firstPositiveIndex(row [numRPM]float32) int {
	for j := 0; j < numRPM; j++ {
		if row[j] > 0 {
			return j
		}
	}
	return -1
}

// lastPositiveIndex returns the last rpm-axis index with flow > 0 in the
// given pressure row, or -1 if the row is all zero.
func lastPositiveIndex(row [numRPM]float32) int {
	for j := numRPM - 1; j >= 0; j-- {
		if row[j] > 0 {
			return j
		}
	}
	return -1
}

// interpRow interpolates flow within a single pressure row as a function of
// rpm, applying the leading/trailing zero policy.
func interpRow(row [numRPM]float32, rpm float32) float32 {
	firstNZ := firstPositiveIndex(row)
	lastNZ := lastPositiveIndex(row)
	if firstNZ < 0 || lastNZ < 0 {
		return 0
	}
	if rpm < rpmAxis[firstNZ] {
		return 0 // true stall region
	}
	if rpm >= rpmAxis[lastNZ] {
		return row[lastNZ] // trailing-zero clamp
	}

	iR := firstNZ
	for iR < lastNZ-1 && rpmAxis[iR+1] <= rpm {
		iR++
	}
	r1, q1 := rpmAxis[iR], row[iR]

	iR2 := iR + 1
	for iR2 <= lastNZ && row[iR2] <= 0 {
		iR2++
	}
	if q1 <= 0 {
		return 0
	}
	if iR2 > lastNZ {
		return q1
	}
	r2, q2 := rpmAxis[iR2], row[iR2]

	denom := r2 - r1
	t := float32(0)
	if denom > 0 {
		t = (rpm - r1) / denom
	}
	q := q1 + t*(q2-q1)
	if q < 0 {
		return 0
	}
	return q
}

// Lookup returns the available flow in ml/min for rpm and pressureBar,
// bilinearly interpolated across the pressure axis over the rpm-axis
// interpolation of interpRow.
func (FlowMap) Lookup(rpm, pressureBar float32) float32 {
	rpm = clampf(rpm, rpmAxis[0], rpmAxis[numRPM-1])
	pressureBar = clampf(pressureBar, pressureAxis[0], pressureAxis[numPressure-1])

	iP := 0
	for iP < numPressure-2 && pressureAxis[iP+1] <= pressureBar {
		iP++
	}
	p1, p2 := pressureAxis[iP], pressureAxis[iP+1]
	denom := p2 - p1
	u := float32(0)
	if denom > 0 {
		u = (pressureBar - p1) / denom
	}

	qP1 := interpRow(flowTable[iP], rpm)
	qP2 := interpRow(flowTable[iP+1], rpm)
	q := qP1 + u*(qP2-qP1)
	if q < 0 {
		return 0
	}
	return q
}
