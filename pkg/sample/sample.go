package sample

// NumChannels is the number of channels carried by every frame and replay row.
const NumChannels = 4

// Channels holds one value per channel, ch1 first.
type Channels [NumChannels]float64

// Sample is one acquired point: elapsed milliseconds since the first sample of the
// run and the (possibly smoothed) channel values.
type Sample struct {
	TimestampMS int64
	Ch          Channels
}
