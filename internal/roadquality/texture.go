package roadquality

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/roadquality/internal/monitoring"
)

// Texture categories.
const (
	TextureUnknown     = "Unknown"
	TextureUndulating  = "Undulating"
	TextureRough       = "Rough"
	TextureFineGrained = "Fine-grained"
)

const (
	fftWindowCapacity   = 128
	fftMinSamples       = 64
	textureNewestPerRun = 10
	spectralPeakRatio   = 0.3
	undulatingMaxHz     = 3.0
	roughMaxHz          = 15.0
)

// spectrumCache keeps the FFT plan and Hann coefficients for one window
// length.
type spectrumCache struct {
	n    int
	fft  *fourier.FFT
	hann []float64
}

func newSpectrumCache(n int) *spectrumCache {
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	return &spectrumCache{
		n:    n,
		fft:  fourier.NewFFT(n),
		hann: window.Hann(ones),
	}
}

// AnalyzeTexture extends the rolling vibration window with the newest
// samples and, when enough samples are present, classifies the dominant
// vibration frequency. It runs at most once per TextureInterval and returns
// the smoothed texture score.
func (a *Analyzer) AnalyzeTexture(samples []float64) float64 {
	now := a.clock.Now()
	if !a.lastTextureAt.IsZero() && now.Sub(a.lastTextureAt) < a.opts.TextureInterval {
		return a.roadTextureScore
	}
	a.lastTextureAt = now

	newest := samples
	if len(newest) > textureNewestPerRun {
		newest = newest[len(newest)-textureNewestPerRun:]
	}
	for _, v := range newest {
		if finite(v) {
			a.fftWindow = pushBounded(a.fftWindow, v, fftWindowCapacity)
		}
	}
	if len(a.fftWindow) < fftMinSamples {
		a.diag.Inc(monitoring.CounterTextureSkipped)
		return a.roadTextureScore
	}

	freq, ok := a.dominantFrequency()
	if !ok {
		return a.roadTextureScore
	}

	switch {
	case freq < undulatingMaxHz:
		a.textureLabel = TextureUndulating
		a.roadTextureScore = moveToward(a.roadTextureScore, 40, 5)
	case freq < roughMaxHz:
		a.textureLabel = TextureRough
		a.roadTextureScore = 0.8*a.roadTextureScore + 0.2*50
	default:
		a.textureLabel = TextureFineGrained
		a.roadTextureScore = moveToward(a.roadTextureScore, 60, 5)
	}
	a.roadTextureScore = clamp(a.roadTextureScore, 0, 100)
	return a.roadTextureScore
}

// dominantFrequency returns the frequency in Hz of the strongest spectral
// peak of the DC-removed, Hann-windowed buffer. It reports false for a flat
// signal with no spectral content.
func (a *Analyzer) dominantFrequency() (float64, bool) {
	n := len(a.fftWindow)
	if a.spectrum == nil || a.spectrum.n != n {
		a.spectrum = newSpectrumCache(n)
	}

	mean := stat.Mean(a.fftWindow, nil)
	seq := make([]float64, n)
	for i, v := range a.fftWindow {
		seq[i] = (v - mean) * a.spectrum.hann[i]
	}

	coeffs := a.spectrum.fft.Coefficients(nil, seq)
	mags := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mags[i] = cmplx.Abs(c)
	}

	k, ok := dominantBin(mags)
	if !ok {
		return 0, false
	}
	return a.spectrum.fft.Freq(k) * a.opts.TextureSampleRateHz, true
}

// dominantBin picks the highest local maximum of mags above 30% of the
// largest non-DC magnitude, ignoring bin 0. If no local maximum qualifies
// the largest non-DC bin is used.
func dominantBin(mags []float64) (int, bool) {
	if len(mags) < 2 {
		return 0, false
	}
	maxBin := 1
	for k := 2; k < len(mags); k++ {
		if mags[k] > mags[maxBin] {
			maxBin = k
		}
	}
	if mags[maxBin] <= 1e-12 {
		return 0, false
	}

	cutoff := spectralPeakRatio * mags[maxBin]
	best := -1
	for k := 1; k < len(mags); k++ {
		left := 0.0
		if k > 1 {
			left = mags[k-1]
		}
		right := 0.0
		if k+1 < len(mags) {
			right = mags[k+1]
		}
		if mags[k] > left && mags[k] >= right && mags[k] > cutoff {
			if best < 0 || mags[k] > mags[best] {
				best = k
			}
		}
	}
	if best < 0 {
		best = maxBin
	}
	return best, true
}
