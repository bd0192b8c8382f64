package tunebook

import (
	"encoding/binary"

	"github.com/ceol/tunebook-go/internal/schedule"
	"github.com/ceol/tunebook-go/internal/synth"
)

// RenderSamples renders a schedule offline through the given engine at
// the given tempo multiplier, returning interleaved stereo float32.
// Deterministic: no real-time scheduling is involved.
func RenderSamples(eng synth.Engine, sched *schedule.NoteSchedule, tempo float64, sampleRate int) ([]float32, error) {
	return synth.RenderOffline(eng, sched, tempo, sampleRate)
}

// EncodeWAVPCM16 serializes interleaved float32 samples as an
// uncompressed 16-bit little-endian PCM RIFF/WAVE file. Each sample is
// clamped to [-1, 1]; negative values scale by 32768 and positive by
// 32767 so both extremes map onto the full signed 16-bit range.
func EncodeWAVPCM16(samples []float32, sampleRate, channels int) []byte {
	dataSize := len(samples) * 2
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 16)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[44+i*2:], uint16(v))
	}
	return out
}

// EncodeMIDI returns the download bytes for a canonical MIDI buffer.
// The buffer is already normalized; this is a passthrough kept for
// symmetry with EncodeWAVPCM16.
func EncodeMIDI(canonical []byte) []byte {
	return canonical
}
