package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tkaraden/sealbird/internal/models"
	"github.com/tkaraden/sealbird/internal/store"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the publication queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List publication queue items",
	RunE:  runQueueList,
}

var queueShowCmd = &cobra.Command{
	Use:   "show [item-id]",
	Short: "Show one publication item in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueShow,
}

var (
	queueStatus string
	queueLimit  int
)

func init() {
	queueCmd.AddCommand(queueListCmd, queueShowCmd)

	queueListCmd.Flags().StringVar(&queueStatus, "status", "", "Filter by status (pending, published, tx_submitted, confirmed, final, failed)")
	queueListCmd.Flags().IntVar(&queueLimit, "limit", 50, "Maximum rows to print")
}

func runQueueList(cmd *cobra.Command, args []string) error {
	statuses := []models.PubStatus{
		models.PubStatusPending, models.PubStatusPublished, models.PubStatusTxSubmitted,
		models.PubStatusConfirmed, models.PubStatusFinal, models.PubStatusFailed,
	}
	if queueStatus != "" {
		st := models.PubStatus(queueStatus)
		valid := false
		for _, known := range statuses {
			if st == known {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("unknown status %q", queueStatus)
		}
		statuses = []models.PubStatus{st}
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	items, err := s.ListPubItems(queueLimit, statuses...)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No items.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSOURCE POST\tCONF\tRETRIES\tUPDATED")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			shortID(item.ID), item.Status, item.SourcePostID,
			item.Confirmations, item.SubmitRetries,
			item.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}
	return w.Flush()
}

func runQueueShow(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	item, err := s.GetPubItem(args[0])
	if err != nil {
		return err
	}
	if item == nil {
		item, err = findByIDPrefix(s, args[0])
		if err != nil {
			return err
		}
	}

	fmt.Printf("ID:            %s\n", item.ID)
	fmt.Printf("Status:        %s\n", item.Status)
	fmt.Printf("Source post:   %s\n", item.SourcePostID)
	fmt.Printf("Reply:         %s\n", item.ReplyContent)
	if item.ReplyPostID != "" {
		fmt.Printf("Reply post:    %s\n", item.ReplyPostID)
	}
	if item.ContentHash != "" {
		fmt.Printf("Content hash:  %s\n", item.ContentHash)
	}
	if item.TxHash != "" {
		fmt.Printf("Tx hash:       %s\n", item.TxHash)
		fmt.Printf("Sent height:   %d\n", item.TxSentHeight)
		fmt.Printf("Confirmations: %d\n", item.Confirmations)
	}
	if item.SubmitRetries > 0 {
		fmt.Printf("Resubmissions: %d\n", item.SubmitRetries)
	}
	if item.SealPostID != "" {
		fmt.Printf("Seal post:     %s\n", item.SealPostID)
	}
	if item.FailureReason != "" {
		fmt.Printf("Failure:       %s\n", item.FailureReason)
	}
	fmt.Printf("Created:       %s\n", item.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:       %s\n", item.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// findByIDPrefix resolves the truncated ids the list command prints.
func findByIDPrefix(s *store.Store, prefix string) (*models.PubQueueItem, error) {
	items, err := s.ListPubItems(1000,
		models.PubStatusPending, models.PubStatusPublished, models.PubStatusTxSubmitted,
		models.PubStatusConfirmed, models.PubStatusFinal, models.PubStatusFailed,
	)
	if err != nil {
		return nil, err
	}

	var match *models.PubQueueItem
	for i := range items {
		if strings.HasPrefix(items[i].ID, prefix) {
			if match != nil {
				return nil, fmt.Errorf("id prefix %q is ambiguous", prefix)
			}
			match = &items[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no publication item %s", prefix)
	}
	return match, nil
}
