package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tkaraden/sealbird/internal/config"
	"github.com/tkaraden/sealbird/internal/models"
	"github.com/tkaraden/sealbird/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline queue health",
	RunE:  runStatus,
}

// openStore opens the configured database for the inspection commands.
func openStore() (*store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return store.New(cfg.DBPath)
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	counts, err := s.CountPubByStatus()
	if err != nil {
		return err
	}

	fmt.Println("Publication queue:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	order := []models.PubStatus{
		models.PubStatusPending, models.PubStatusPublished, models.PubStatusTxSubmitted,
		models.PubStatusConfirmed, models.PubStatusFinal, models.PubStatusFailed,
	}
	for _, st := range order {
		fmt.Fprintf(w, "  %s\t%d\n", st, counts[st])
	}
	w.Flush()

	meta, err := s.ListUnconfirmedMetadataUpdates(1000)
	if err != nil {
		return err
	}
	unpin, err := s.ListUnpinItems(1000)
	if err != nil {
		return err
	}
	fmt.Printf("\nMetadata updates awaiting confirmation: %d\n", len(meta))
	fmt.Printf("Unpin queue depth: %d\n", len(unpin))

	records, err := s.ListVerificationRecords(5)
	if err != nil {
		return err
	}
	if len(records) > 0 {
		fmt.Println("\nRecent verification records:")
		rw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(rw, "  TX HASH\tREPLY POST\tSEALED AT")
		for _, r := range records {
			fmt.Fprintf(rw, "  %s\t%s\t%s\n", r.TxHash, r.ReplyPostID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		rw.Flush()
	}

	return nil
}
