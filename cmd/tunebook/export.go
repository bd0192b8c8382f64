package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	tunebook "github.com/ceol/tunebook-go"
	"github.com/ceol/tunebook-go/internal/schedule"
	"github.com/ceol/tunebook-go/internal/synth"
)

var (
	exportFormat  string
	exportSetting int
	exportTempo   float64
	exportDir     string
)

var exportCmd = &cobra.Command{
	Use:   "export <tune-id>",
	Short: "Export a tune as a WAV or MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "wav", "output format: wav|midi")
	exportCmd.Flags().IntVar(&exportSetting, "setting", 0, "setting (version) index")
	exportCmd.Flags().Float64Var(&exportTempo, "tempo", 1.0, "tempo multiplier (0.5-2.0)")
	exportCmd.Flags().StringVar(&exportDir, "out", ".", "output directory")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	tune, err := resolveTune(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	score, err := scoreForSetting(tune, exportSetting)
	if err != nil {
		return err
	}
	midi, err := score.SMF()
	if err != nil {
		return err
	}
	version := exportVersion(tune, exportSetting)

	var name string
	var data []byte
	switch exportFormat {
	case "midi":
		name = tunebook.MIDIFileName(tune.ID, version)
		data = tunebook.EncodeMIDI(midi)

	case "wav":
		if soundFontPath == "" {
			return fmt.Errorf("--soundfont is required for wav export")
		}
		sf2, err := os.ReadFile(soundFontPath)
		if err != nil {
			return fmt.Errorf("read soundfont: %w", err)
		}
		eng, err := synth.NewSoundFontEngine(bytes.NewReader(sf2), sampleRate)
		if err != nil {
			return err
		}
		defer eng.Close()
		sched, err := schedule.Build(midi)
		if err != nil {
			return err
		}
		samples, err := tunebook.RenderSamples(eng, sched, exportTempo, sampleRate)
		if err != nil {
			return err
		}
		name = tunebook.WAVFileName(tune.ID, version)
		data = tunebook.EncodeWAVPCM16(samples, sampleRate, 2)

	default:
		return fmt.Errorf("unknown format %q (want wav or midi)", exportFormat)
	}

	path := filepath.Join(exportDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", path, len(data))
	return nil
}
