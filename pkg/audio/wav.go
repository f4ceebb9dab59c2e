package audio

import (
	"encoding/binary"
	"errors"
)

const wavHeaderSize = 44

// EncodeWAV prepends a canonical 44-byte PCM16 header to pcm.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}

// DecodeWAV walks the RIFF chunks and returns the data chunk with the
// format read from the fmt chunk. Only 16-bit PCM is accepted.
func DecodeWAV(wav []byte) ([]byte, Format, error) {
	if len(wav) < wavHeaderSize {
		return nil, Format{}, errors.New("wav data too short")
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, Format{}, errors.New("not a valid WAV file")
	}

	f := Format{Encoding: EncodingPCM16}
	haveFmt := false

	pos := 12
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		start := pos + 8

		switch id {
		case "fmt ":
			if start+16 > len(wav) {
				return nil, Format{}, errors.New("truncated fmt chunk")
			}
			if tag := binary.LittleEndian.Uint16(wav[start : start+2]); tag != 1 {
				return nil, Format{}, ErrUnsupportedFormat
			}
			f.Channels = int(binary.LittleEndian.Uint16(wav[start+2 : start+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(wav[start+4 : start+8]))
			if bits := binary.LittleEndian.Uint16(wav[start+14 : start+16]); bits != 16 {
				return nil, Format{}, ErrUnsupportedFormat
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, Format{}, errors.New("data chunk before fmt chunk")
			}
			end := start + size
			// Streaming encoders write a placeholder size.
			if end > len(wav) || size == 0 {
				end = len(wav)
			}
			return wav[start:end], f, nil
		}

		pos = start + size
		// Chunks are word-aligned.
		if size%2 != 0 {
			pos++
		}
	}

	return nil, Format{}, errors.New("data chunk not found in WAV")
}
