package tunebook

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeWAVPCM16SizeLaw(t *testing.T) {
	for _, frames := range []int{0, 1, 100, 44100} {
		samples := make([]float32, frames*2) // stereo interleaved
		out := EncodeWAVPCM16(samples, 44100, 2)
		want := 44 + frames*2*2
		if len(out) != want {
			t.Fatalf("frames=%d: encoded %d bytes, want %d", frames, len(out), want)
		}
	}
}

func TestEncodeWAVPCM16Header(t *testing.T) {
	samples := make([]float32, 200) // 100 stereo frames
	out := EncodeWAVPCM16(samples, 48000, 2)

	if !bytes.Equal(out[0:4], []byte("RIFF")) || !bytes.Equal(out[8:12], []byte("WAVE")) {
		t.Fatal("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint32(out[4:]); got != uint32(36+len(samples)*2) {
		t.Fatalf("chunk size = %d, want %d", got, 36+len(samples)*2)
	}
	if !bytes.Equal(out[12:16], []byte("fmt ")) {
		t.Fatal("missing fmt chunk")
	}
	if got := binary.LittleEndian.Uint16(out[20:]); got != 1 {
		t.Fatalf("format tag = %d, want 1 (PCM)", got)
	}
	if got := binary.LittleEndian.Uint16(out[22:]); got != 2 {
		t.Fatalf("channels = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint32(out[24:]); got != 48000 {
		t.Fatalf("sample rate = %d, want 48000", got)
	}
	if got := binary.LittleEndian.Uint32(out[28:]); got != 48000*2*2 {
		t.Fatalf("byte rate = %d, want %d", got, 48000*2*2)
	}
	if got := binary.LittleEndian.Uint16(out[32:]); got != 4 {
		t.Fatalf("block align = %d, want 4", got)
	}
	if got := binary.LittleEndian.Uint16(out[34:]); got != 16 {
		t.Fatalf("bits per sample = %d, want 16", got)
	}
	if !bytes.Equal(out[36:40], []byte("data")) {
		t.Fatal("missing data chunk")
	}
	if got := binary.LittleEndian.Uint32(out[40:]); got != uint32(len(samples)*2) {
		t.Fatalf("data size = %d, want %d", got, len(samples)*2)
	}
}

func TestEncodeWAVPCM16Scaling(t *testing.T) {
	cases := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{0.5, 16383},
		{-0.5, -16384},
		{2.5, 32767},   // clamps
		{-2.5, -32768}, // clamps
	}
	for _, c := range cases {
		out := EncodeWAVPCM16([]float32{c.in}, 44100, 1)
		got := int16(binary.LittleEndian.Uint16(out[44:]))
		if got != c.want {
			t.Fatalf("sample %v encoded as %d, want %d", c.in, got, c.want)
		}
	}
}

func TestEncodeMIDIPassthrough(t *testing.T) {
	buf := testMIDI(t)
	out := EncodeMIDI(buf)
	if !bytes.Equal(out, buf) {
		t.Fatal("midi export altered the canonical buffer")
	}
}
