package audio

import "fmt"

// BytesToPCM16 converts little-endian 16-bit PCM bytes to samples.
func BytesToPCM16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples)")
	}

	samples := make([]int16, len(data)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples, nil
}

// PCM16ToBytes converts samples to little-endian 16-bit PCM bytes.
func PCM16ToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		data[i*2] = byte(sample)
		data[i*2+1] = byte(sample >> 8)
	}
	return data
}

// Resample performs simple linear interpolation resampling.
// This is a basic implementation - for production quality consider a
// proper sinc interpolation filter.
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// SplitFrames segments a sample buffer into fixed-size frames, assigning
// sequence numbers starting at firstSeq. A trailing partial frame is
// dropped; streaming producers carry the remainder into the next buffer.
func SplitFrames(samples []int16, sampleRate, samplesPerFrame int, firstSeq uint64) []Frame {
	if samplesPerFrame <= 0 {
		return nil
	}

	frames := make([]Frame, 0, len(samples)/samplesPerFrame)
	seq := firstSeq
	for off := 0; off+samplesPerFrame <= len(samples); off += samplesPerFrame {
		pcm := make([]int16, samplesPerFrame)
		copy(pcm, samples[off:off+samplesPerFrame])
		frames = append(frames, Frame{PCM: pcm, SampleRate: sampleRate, Seq: seq})
		seq++
	}
	return frames
}
