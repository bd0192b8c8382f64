package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ceol/tunebook-go/internal/abc"
	"github.com/ceol/tunebook-go/internal/tunedata"
)

var (
	soundFontPath string
	cataloguePath string
	sessionBase   string
	sampleRate    int
)

var rootCmd = &cobra.Command{
	Use:           "tunebook",
	Short:         "Play, export and browse Irish traditional tunes",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&soundFontPath, "soundfont", "", "path to a SoundFont (.sf2) file")
	rootCmd.PersistentFlags().StringVar(&cataloguePath, "catalogue", "", "path to a CSV tune catalogue")
	rootCmd.PersistentFlags().StringVar(&sessionBase, "session-url", tunedata.DefaultBaseURL, "The Session API base URL")
	rootCmd.PersistentFlags().IntVar(&sampleRate, "sample-rate", 44100, "audio sample rate")
}

// resolveTune looks a tune up in the local catalogue when one is
// configured, falling back to The Session.
func resolveTune(ctx context.Context, id string) (*tunedata.Tune, error) {
	if cataloguePath != "" {
		f, err := os.Open(cataloguePath)
		if err != nil {
			return nil, fmt.Errorf("open catalogue: %w", err)
		}
		defer f.Close()
		cat, err := tunedata.LoadCatalogue(f)
		if err != nil {
			return nil, err
		}
		return cat.LookupByID(id)
	}
	return tunedata.NewClient(sessionBase, nil).Tune(ctx, id)
}

// scoreForSetting parses one setting of a tune into a score. Settings
// fetched from The Session carry a bare tune body, so headers are
// synthesized around it when missing.
func scoreForSetting(tune *tunedata.Tune, settingIndex int) (*abc.Score, error) {
	if len(tune.Settings) == 0 {
		return nil, fmt.Errorf("tune %s has no settings", tune.ID)
	}
	if settingIndex < 0 || settingIndex >= len(tune.Settings) {
		return nil, fmt.Errorf("tune %s has no setting %d", tune.ID, settingIndex)
	}
	setting := tune.Settings[settingIndex]
	src := setting.ABC
	if !strings.HasPrefix(strings.TrimSpace(src), "X:") {
		src = fmt.Sprintf("X:%s\nT:%s\nK:%s\n%s\n", tune.ID, tune.Name, setting.Key, src)
	}
	scores, err := abc.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse setting %s: %w", setting.ID, err)
	}
	return scores[0], nil
}

// exportVersion maps a setting index onto the download naming contract:
// multi-setting tunes get a 1-based version suffix, single-setting
// tunes none.
func exportVersion(tune *tunedata.Tune, settingIndex int) int {
	if len(tune.Settings) > 1 {
		return settingIndex + 1
	}
	return 0
}
