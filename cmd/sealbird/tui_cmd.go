package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tkaraden/sealbird/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive queue monitor",
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	app := tui.New(s)
	if err := app.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
