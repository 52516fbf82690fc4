// Package audio provides the telephony codecs, frame chunking, and the
// pre-recorded clip library used on the media streams.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Codec converts between linear PCM samples and a wire format.
type Codec interface {
	Name() string
	BytesPerSample() int
	Encode(pcm []int16) []byte
	Decode(raw []byte) []int16
}

// MulawCodec is G.711 mu-law, the 8-bit companded format Twilio streams use.
type MulawCodec struct{}

func (MulawCodec) Name() string        { return "mulaw" }
func (MulawCodec) BytesPerSample() int { return 1 }

func (MulawCodec) Encode(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		out[i] = mulawEncode(s)
	}
	return out
}

func (MulawCodec) Decode(raw []byte) []int16 {
	out := make([]int16, len(raw))
	for i, b := range raw {
		out[i] = mulawDecodeTable[b]
	}
	return out
}

// Linear16Codec is 16-bit little-endian PCM, the format Exotel streams use.
type Linear16Codec struct{}

func (Linear16Codec) Name() string        { return "linear16" }
func (Linear16Codec) BytesPerSample() int { return 2 }

func (Linear16Codec) Encode(pcm []int16) []byte {
	return PCMToBytes(pcm)
}

func (Linear16Codec) Decode(raw []byte) []int16 {
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}
	pcm, _ := BytesToPCM(raw)
	return pcm
}

// BytesToPCM converts little-endian bytes to int16 samples.
func BytesToPCM(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("invalid PCM data length: %d", len(data))
	}
	pcm := make([]int16, len(data)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return pcm, nil
}

// PCMToBytes converts int16 samples to little-endian bytes.
func PCMToBytes(pcm []int16) []byte {
	data := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

// Resample converts between sample rates with linear interpolation. Good
// enough for 8k/16k/24k telephony hops.
func Resample(input []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(input) == 0 {
		return input
	}

	ratio := float64(inputRate) / float64(outputRate)
	outputLen := int(float64(len(input)) / ratio)
	output := make([]int16, outputLen)

	for i := 0; i < outputLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		if srcIdx+1 < len(input) {
			a := float64(input[srcIdx])
			b := float64(input[srcIdx+1])
			output[i] = int16(a + (b-a)*frac)
		} else if srcIdx < len(input) {
			output[i] = input[srcIdx]
		}
	}

	return output
}

// Normalize scales samples to a target RMS level, clipping at int16 range.
func Normalize(pcm []int16, targetRMS float64) []int16 {
	if len(pcm) == 0 {
		return pcm
	}
	var sum float64
	for _, s := range pcm {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(pcm)))
	if rms == 0 {
		return pcm
	}

	gain := targetRMS / rms
	out := make([]int16, len(pcm))
	for i, s := range pcm {
		scaled := float64(s) * gain
		switch {
		case scaled > 32767:
			out[i] = 32767
		case scaled < -32768:
			out[i] = -32768
		default:
			out[i] = int16(scaled)
		}
	}
	return out
}

// Mu-law companding per G.711.
const (
	mulawBias = 0x84
	mulawClip = 32635
)

var mulawDecodeTable = [256]int16{
	-32124, -31100, -30076, -29052, -28028, -27004, -25980, -24956,
	-23932, -22908, -21884, -20860, -19836, -18812, -17788, -16764,
	-15996, -15484, -14972, -14460, -13948, -13436, -12924, -12412,
	-11900, -11388, -10876, -10364, -9852, -9340, -8828, -8316,
	-7932, -7676, -7420, -7164, -6908, -6652, -6396, -6140,
	-5884, -5628, -5372, -5116, -4860, -4604, -4348, -4092,
	-3900, -3772, -3644, -3516, -3388, -3260, -3132, -3004,
	-2876, -2748, -2620, -2492, -2364, -2236, -2108, -1980,
	-1884, -1820, -1756, -1692, -1628, -1564, -1500, -1436,
	-1372, -1308, -1244, -1180, -1116, -1052, -988, -924,
	-876, -844, -812, -780, -748, -716, -684, -652,
	-620, -588, -556, -524, -492, -460, -428, -396,
	-372, -356, -340, -324, -308, -292, -276, -260,
	-244, -228, -212, -196, -180, -164, -148, -132,
	-120, -112, -104, -96, -88, -80, -72, -64,
	-56, -48, -40, -32, -24, -16, -8, 0,
	32124, 31100, 30076, 29052, 28028, 27004, 25980, 24956,
	23932, 22908, 21884, 20860, 19836, 18812, 17788, 16764,
	15996, 15484, 14972, 14460, 13948, 13436, 12924, 12412,
	11900, 11388, 10876, 10364, 9852, 9340, 8828, 8316,
	7932, 7676, 7420, 7164, 6908, 6652, 6396, 6140,
	5884, 5628, 5372, 5116, 4860, 4604, 4348, 4092,
	3900, 3772, 3644, 3516, 3388, 3260, 3132, 3004,
	2876, 2748, 2620, 2492, 2364, 2236, 2108, 1980,
	1884, 1820, 1756, 1692, 1628, 1564, 1500, 1436,
	1372, 1308, 1244, 1180, 1116, 1052, 988, 924,
	876, 844, 812, 780, 748, 716, 684, 652,
	620, 588, 556, 524, 492, 460, 428, 396,
	372, 356, 340, 324, 308, 292, 276, 260,
	244, 228, 212, 196, 180, 164, 148, 132,
	120, 112, 104, 96, 88, 80, 72, 64,
	56, 48, 40, 32, 24, 16, 8, 0,
}

func mulawEncode(pcm int16) byte {
	// Widen before negating so math.MinInt16 doesn't overflow.
	s := int(pcm)
	sign := uint8(0)
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	// Segment boundaries 0xFF, 0x1FF, ..., 0x7FFF per G.711.
	var segment uint8
	switch {
	case s <= 0xFF:
		segment = 0
	case s <= 0x1FF:
		segment = 1
	case s <= 0x3FF:
		segment = 2
	case s <= 0x7FF:
		segment = 3
	case s <= 0xFFF:
		segment = 4
	case s <= 0x1FFF:
		segment = 5
	case s <= 0x3FFF:
		segment = 6
	default:
		segment = 7
	}
	mantissa := uint8(s>>(segment+3)) & 0x0F

	return ^(sign | (segment << 4) | mantissa)
}
