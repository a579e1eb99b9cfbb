package smooth

import "github.com/scopeview/pkg/sample"

// Smoother applies per-channel exponential smoothing. The zero value starts from an
// all-zero state, which is what the first sample is blended against.
type Smoother struct {
	state sample.Channels
}

// Apply folds raw into the running state and returns the new state. With smoothing
// disabled the state is overwritten by raw, so re-enabling starts from the last raw
// value. alpha is clamped to [0, 1].
func (s *Smoother) Apply(raw sample.Channels, enabled bool, alpha float64) sample.Channels {
	if !enabled {
		s.state = raw
		return s.state
	}
	alpha = Clamp(alpha)
	for i := range s.state {
		s.state[i] = s.state[i]*alpha + raw[i]*(1-alpha)
	}
	return s.state
}

// State returns the current channel state.
func (s *Smoother) State() sample.Channels { return s.state }

// Reset zeroes the state.
func (s *Smoother) Reset() { s.state = sample.Channels{} }

// Clamp limits a smoothing factor to the [0, 1] range of the control that supplies it.
func Clamp(alpha float64) float64 {
	switch {
	case alpha != alpha: // NaN
		return 0
	case alpha < 0:
		return 0
	case alpha > 1:
		return 1
	}
	return alpha
}
