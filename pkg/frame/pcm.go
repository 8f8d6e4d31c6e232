package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Interleaved float PCM, nominally in [-1.0, 1.0].
type PCMFrame []float32

var (
	errUnsupportedBitDepth = errors.New("unsupported LPCM bit depth")
)

// Encode samples as little-endian LPCM of the given bit depth, appending to dst.
//
// 8 bit LPCM is unsigned (offset binary), all other depths are signed
// two's complement. Samples outside [-1, 1] are clipped.
func EncodeLPCM(dst []byte, samples PCMFrame, bitDepth int) ([]byte, error) {
	bytesPerSample := bitDepth / 8
	if bitDepth%8 != 0 || bytesPerSample < 1 || bytesPerSample > 4 {
		return dst, fmt.Errorf("%w: %d", errUnsupportedBitDepth, bitDepth)
	}

	maxValue := float64(int64(1)<<(bitDepth-1) - 1)
	var scratch [4]byte
	for _, s := range samples {
		v := int64(math.Round(float64(clip(s)) * maxValue))
		switch bytesPerSample {
		case 1:
			scratch[0] = byte(v + 128)
		case 2:
			binary.LittleEndian.PutUint16(scratch[:], uint16(int16(v)))
		case 3:
			u := uint32(int32(v))
			scratch[0], scratch[1], scratch[2] = byte(u), byte(u>>8), byte(u>>16)
		case 4:
			binary.LittleEndian.PutUint32(scratch[:], uint32(int32(v)))
		}
		dst = append(dst, scratch[:bytesPerSample]...)
	}
	return dst, nil
}

// Decode little-endian LPCM of the given bit depth into float samples, appending to dst.
// A trailing partial sample is ignored.
func DecodeLPCM(dst PCMFrame, data []byte, bitDepth int) (PCMFrame, error) {
	bytesPerSample := bitDepth / 8
	if bitDepth%8 != 0 || bytesPerSample < 1 || bytesPerSample > 4 {
		return dst, fmt.Errorf("%w: %d", errUnsupportedBitDepth, bitDepth)
	}

	scale := float32(int64(1) << (bitDepth - 1))
	for i := 0; i+bytesPerSample <= len(data); i += bytesPerSample {
		var v int32
		switch bytesPerSample {
		case 1:
			v = int32(data[i]) - 128
		case 2:
			v = int32(int16(binary.LittleEndian.Uint16(data[i:])))
		case 3:
			u := uint32(data[i]) | uint32(data[i+1])<<8 | uint32(data[i+2])<<16
			v = int32(u<<8) >> 8
		case 4:
			v = int32(binary.LittleEndian.Uint32(data[i:]))
		}
		dst = append(dst, float32(v)/scale)
	}
	return dst, nil
}

func clip(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
