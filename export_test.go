package tunebook

import "testing"

func TestExportFileNames(t *testing.T) {
	cases := []struct {
		id      string
		version int
		midi    string
		wav     string
	}{
		{"1432", 0, "tune-1432.mid", "tune-1432.wav"},
		{"1432", 3, "tune-1432-v3.mid", "tune-1432-v3.wav"},
		{"27", -1, "tune-27.mid", "tune-27.wav"},
	}
	for _, c := range cases {
		if got := MIDIFileName(c.id, c.version); got != c.midi {
			t.Fatalf("MIDIFileName(%q, %d) = %q, want %q", c.id, c.version, got, c.midi)
		}
		if got := WAVFileName(c.id, c.version); got != c.wav {
			t.Fatalf("WAVFileName(%q, %d) = %q, want %q", c.id, c.version, got, c.wav)
		}
	}
}
