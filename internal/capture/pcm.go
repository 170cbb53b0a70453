package capture

import "math"

// Decimate drops samples from s16le PCM by an integer ratio, keeping every
// ratio-th sample. The output holds exactly floor(N/ratio) samples for N
// input samples. Nearest-neighbor decimation is not bandlimited, which is
// acceptable for speech.
func Decimate(pcm []byte, ratio int) []byte {
	if ratio <= 1 {
		return pcm
	}
	samples := len(pcm) / 2
	kept := samples / ratio
	out := make([]byte, 0, kept*2)
	for i := 0; i < kept; i++ {
		src := i * ratio * 2
		out = append(out, pcm[src], pcm[src+1])
	}
	return out
}

// DecimateFrom is Decimate with an explicit starting phase, so callers
// feeding PCM in arbitrary read-sized pieces keep one sample cadence across
// buffer boundaries. It returns the decimated PCM and the phase to pass
// with the next buffer.
func DecimateFrom(pcm []byte, ratio, phase int) ([]byte, int) {
	if ratio <= 1 {
		return pcm, 0
	}
	samples := len(pcm) / 2
	out := make([]byte, 0, (samples/ratio+1)*2)
	for i := 0; i < samples; i++ {
		if phase == 0 {
			out = append(out, pcm[i*2], pcm[i*2+1])
		}
		phase = (phase + 1) % ratio
	}
	return out, phase
}

// DownmixMono keeps channel 0 of interleaved s16le PCM.
func DownmixMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frame := 2 * channels
	frames := len(pcm) / frame
	out := make([]byte, 0, frames*2)
	for i := 0; i < frames; i++ {
		out = append(out, pcm[i*frame], pcm[i*frame+1])
	}
	return out
}

// SumSquares returns the sum of squared full-scale-normalized sample values
// and the sample count. It is the running form of the energy behind RMSdB,
// for callers that accumulate over many buffers.
func SumSquares(pcm []byte) (float64, int) {
	samples := len(pcm) / 2
	var sum float64
	for i := 0; i < samples; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		v := float64(s) / 32768.0
		sum += v * v
	}
	return sum, samples
}

// RMSdB computes the RMS energy of s16le PCM in decibels relative to full
// scale. Pure silence returns a large negative floor rather than -Inf.
func RMSdB(pcm []byte) float64 {
	const floor = -96.0

	sum, samples := SumSquares(pcm)
	if samples == 0 {
		return floor
	}

	rms := math.Sqrt(sum / float64(samples))
	if rms <= 0 {
		return floor
	}
	db := 20 * math.Log10(rms)
	if db < floor {
		return floor
	}
	return db
}
