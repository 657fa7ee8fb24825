// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package machine

// scalarKalmanFilter is a 1-D Kalman filter for the pressure signal,
// grounded on the source's SimpleKalmanFilter usage in PressureController
// (measurement noise R=0.1, process noise Q=10, spec §4.3).
type scalarKalmanFilter struct {
	measurementError float32 // R
	processError     float32 // Q
	estimateError    float32 // P, evolves each update
	estimate         float32
	initialized      bool
}

func newScalarKalmanFilter(measurementError, processError, initialEstimateError float32) *scalarKalmanFilter {
	return &scalarKalmanFilter{
		measurementError: measurementError,
		processError:     processError,
		estimateError:    initialEstimateError,
	}
}

// update folds in a new measurement and returns the filtered estimate.
func (k *scalarKalmanFilter) update(measurement float32) float32 {
	if !k.initialized {
		k.estimate = measurement
		k.initialized = true
		return k.estimate
	}

	k.estimateError += k.processError
	gain := k.estimateError / (k.estimateError + k.measurementError)
	k.estimate += gain * (measurement - k.estimate)
	k.estimateError = (1 - gain) * k.estimateError
	return k.estimate
}
