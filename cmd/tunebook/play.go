package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	tunebook "github.com/ceol/tunebook-go"
	"github.com/ceol/tunebook-go/internal/tui"
)

var (
	playSetting int
	playTempo   float64
	playLoop    bool
)

var playCmd = &cobra.Command{
	Use:   "play <tune-id>",
	Short: "Play a tune interactively",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

func init() {
	playCmd.Flags().IntVar(&playSetting, "setting", 0, "setting (version) index")
	playCmd.Flags().Float64Var(&playTempo, "tempo", 1.0, "tempo multiplier (0.5-2.0)")
	playCmd.Flags().BoolVar(&playLoop, "loop", false, "loop playback")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	if soundFontPath == "" {
		return fmt.Errorf("--soundfont is required for playback")
	}
	sf2, err := os.ReadFile(soundFontPath)
	if err != nil {
		return fmt.Errorf("read soundfont: %w", err)
	}

	tune, err := resolveTune(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	score, err := scoreForSetting(tune, playSetting)
	if err != nil {
		return err
	}
	midi, err := score.SMF()
	if err != nil {
		return err
	}

	overlay := tui.NewOverlay()
	updates := make(chan struct{}, 1)
	player := tunebook.NewPlayer(
		tunebook.WithBackendFactory(tunebook.NewLiveBackendFactory(sf2, sampleRate)),
		tunebook.WithScoreView(tunebook.ScoreView{Score: score}, overlay),
		tunebook.WithOnPosition(func(float64, tunebook.TransportState) {
			select {
			case updates <- struct{}{}:
			default:
			}
		}),
	)
	if err := player.Activate(midi, 0); err != nil {
		return fmt.Errorf("activate player: %w", err)
	}
	defer player.Close()
	player.SetTempo(playTempo)
	player.SetLoop(playLoop)

	model := tui.NewModel(player, score, overlay, updates)
	_, err = tea.NewProgram(model).Run()
	return err
}
