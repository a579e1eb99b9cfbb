package main

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Spectrum is the one-sided magnitude spectrum of a channel.
type Spectrum struct {
	Channel int       `json:"channel"`
	RateHz  float64   `json:"rate_hz"`
	FreqHz  []float64 `json:"freq_hz"`
	DB      []float64 `json:"db"` // relative to the 16-bit full scale
}

// computeSpectrum windows series with a Blackman window after removing its mean and
// returns the power per bin in dB relative to a full-scale 16-bit sine. rateHz sets
// the frequency axis; with rateHz <= 0 the axis is in cycles per sample.
func computeSpectrum(series []float64, rateHz float64) (freqs, db []float64) {
	n := len(series)
	if n < 2 {
		return nil, nil
	}

	// Generate Blackman window and compute its sum for normalization
	window := make([]float64, n)
	windowSum := 0.0
	for i := 0; i < n; i++ {
		window[i] = 0.42 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1)) +
			0.08*math.Cos(4*math.Pi*float64(i)/float64(n-1))
		windowSum += window[i]
	}

	mean := 0.0
	for _, v := range series {
		mean += v
	}
	mean /= float64(n)

	input := make([]float64, n)
	for i, v := range series {
		input[i] = (v - mean) * window[i]
	}

	coeffs := fourier.NewFFT(n).Coefficients(nil, input)

	// A real sine of amplitude A lands as A/2 * windowSum in its bin.
	const fullScaleAmplitude = 32768.0
	reference := fullScaleAmplitude / 2 * windowSum
	if rateHz <= 0 {
		rateHz = 1
	}

	freqs = make([]float64, len(coeffs))
	db = make([]float64, len(coeffs))
	for i, c := range coeffs {
		freqs[i] = float64(i) * rateHz / float64(n)
		if mag := cmplx.Abs(c); mag > 0 {
			db[i] = 20 * math.Log10(mag/reference)
		} else {
			db[i] = -150.0
		}
	}
	return freqs, db
}
