// Package roadquality estimates road-surface quality from a forward-facing
// LiDAR scan and a vertical accelerometer stream.
//
// An Analyzer is a long-lived, stateful estimator for one measurement
// session. It combines four pieces:
//
//   - a flat-road geometric model of the LiDAR scan, scored by how far the
//     observed distances deviate from it and smoothed adaptively;
//   - accelerometer calibration and isolated-peak event detection;
//   - an FFT texture classifier over a rolling vibration window;
//   - stateless classification and colour helpers for consumers.
//
// The Analyzer is not safe for concurrent use. Callers serialise access,
// normally by routing every snapshot through a single pipeline worker.
// No method returns an error: insufficient data, degenerate geometry and
// numerical fit failures all fall back to the previous value or to the
// unadjusted model.
package roadquality
