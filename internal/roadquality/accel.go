package roadquality

import (
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

const (
	minAccelThreshold  = 0.3
	thresholdStdFactor = 2.5
	tempCoefficient    = 0.005
	detectionWindow    = 20
	isolationRadius    = 2
)

func newEventID() string {
	return uuid.NewString()
}

// Calibrate derives the accelerometer baseline and threshold from the most
// recent CalibrationSamples samples. It returns false, leaving the analyzer
// uncalibrated, when there are not enough samples. An analyzer calibrates
// once per session; later calls return true without recalibrating.
func (a *Analyzer) Calibrate(samples []float64) bool {
	if a.isCalibrated {
		return true
	}
	n := a.opts.CalibrationSamples
	if len(samples) < n {
		return false
	}
	mean, std := stat.PopMeanStdDev(samples[len(samples)-n:], nil)
	if !finite(mean) || !finite(std) {
		return false
	}
	a.accelBaseline = mean
	a.accelThresholdBase = math.Max(minAccelThreshold, thresholdStdFactor*std)
	a.isCalibrated = true
	a.applyTemperature()
	return true
}

func (a *Analyzer) applyTemperature() {
	if !a.isCalibrated {
		return
	}
	thr := a.accelThresholdBase
	if a.env.TemperatureC != nil {
		// The 0.3g floor bounds the calibrated base only; cold air may
		// lower the effective threshold below it.
		adj := thr * (1 + tempCoefficient*(*a.env.TemperatureC-a.opts.ReferenceTempC))
		if finite(adj) && adj > 0 {
			thr = adj
		}
	}
	a.accelThreshold = thr
}

// DetectEvents looks for isolated peaks in the last 20 baseline-subtracted
// samples and appends accepted ones to the session's events, tagged with
// gps. It returns only the events accepted by this call.
func (a *Analyzer) DetectEvents(samples []float64, gps GPSFix) []Event {
	if !a.Calibrate(samples) {
		return nil
	}
	window := samples
	if len(window) > detectionWindow {
		window = window[len(window)-detectionWindow:]
	}
	if len(window) < 3 {
		return nil
	}

	now := a.clock.Now()
	if !a.lastAccelEvent.IsZero() && now.Sub(a.lastAccelEvent) < a.opts.EventRefractory {
		return nil
	}

	signal := make([]float64, len(window))
	for i, v := range window {
		signal[i] = v - a.accelBaseline
	}
	threshold := a.adaptiveThreshold(signal)

	var found []Event
	for _, i := range isolatedPeaks(signal, threshold) {
		mag := signal[i]
		sev := accelSeverity(mag, a.opts.AccelMinMagnitude)
		if sev < a.opts.MinEventSeverity {
			continue
		}
		typ := EventBump
		if mag < 0 {
			typ = EventPothole
		}
		found = append(found, Event{
			ID:        a.newID(),
			Type:      typ,
			Source:    SourceAccel,
			Severity:  sev,
			Magnitude: mag,
			Timestamp: now,
			Lat:       gps.Lat,
			Lon:       gps.Lon,
		})
	}
	if len(found) > 0 {
		a.lastAccelEvent = now
		a.events = append(a.events, found...)
	}
	return found
}

// adaptiveThreshold widens the calibrated threshold when the window is
// already noisy.
func (a *Analyzer) adaptiveThreshold(signal []float64) float64 {
	variance := stat.PopVariance(signal, nil)
	return math.Max(a.opts.AccelMinMagnitude, a.accelThreshold*(1+0.5*math.Sqrt(variance)))
}

// isolatedPeaks returns indices of local maxima of signal and of -signal
// whose magnitude exceeds threshold and which have no other such peak
// within two samples.
func isolatedPeaks(signal []float64, threshold float64) []int {
	var candidates []int
	for i := 1; i < len(signal)-1; i++ {
		prev, cur, next := signal[i-1], signal[i], signal[i+1]
		switch {
		case cur > prev && cur > next && cur > threshold:
			candidates = append(candidates, i)
		case cur < prev && cur < next && -cur > threshold:
			candidates = append(candidates, i)
		}
	}

	var out []int
	for k, i := range candidates {
		isolated := true
		if k > 0 && i-candidates[k-1] <= isolationRadius {
			isolated = false
		}
		if k+1 < len(candidates) && candidates[k+1]-i <= isolationRadius {
			isolated = false
		}
		if isolated {
			out = append(out, i)
		}
	}
	return out
}

// accelSeverity compresses magnitude logarithmically onto 0-100.
func accelSeverity(magnitude, minMagnitude float64) int {
	s := math.Round(40 * math.Log10(1+math.Abs(magnitude)/minMagnitude))
	return int(math.Min(100, s))
}

// updateAccelScore derives a 0-100 smoothness estimate from the RMS of the
// baseline-subtracted detection window relative to the threshold.
func (a *Analyzer) updateAccelScore(samples []float64) {
	if !a.isCalibrated || len(samples) == 0 || a.accelThreshold <= 0 {
		return
	}
	window := samples
	if len(window) > detectionWindow {
		window = window[len(window)-detectionWindow:]
	}
	var sumSq float64
	var n int
	for _, v := range window {
		if !finite(v) {
			continue
		}
		d := v - a.accelBaseline
		sumSq += d * d
		n++
	}
	if n == 0 {
		return
	}
	rms := math.Sqrt(sumSq / float64(n))
	a.accelScore = clamp(100-rms/a.accelThreshold*25, 0, 100)
}
