package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tkaraden/sealbird/internal/chain"
	"github.com/tkaraden/sealbird/internal/config"
	"github.com/tkaraden/sealbird/internal/store"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [source-post-id]",
	Short: "Check a reply's stored hash against the on-chain registry",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	postID := args[0]

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.RPCEndpoint == "" || cfg.ContractAddress == "" {
		return fmt.Errorf("verification needs SEALBIRD_RPC_URL and SEALBIRD_CONTRACT_ADDRESS")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// The submitter key is not needed for registry reads.
	gateway, err := chain.NewEthGateway(ctx, cfg.RPCEndpoint, cfg.ContractAddress, "", cfg.ChainID)
	if err != nil {
		return err
	}
	defer gateway.Close()

	s, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	item, err := s.GetPubItemBySource(postID)
	if err != nil {
		return err
	}

	exists, err := gateway.HasResponse(ctx, postID)
	if err != nil {
		return err
	}
	if !exists {
		fmt.Printf("No on-chain record for post %s\n", postID)
		if item != nil {
			fmt.Printf("Local item %s is %s\n", shortID(item.ID), item.Status)
		}
		return nil
	}

	onChain, err := gateway.GetResponse(ctx, postID)
	if err != nil {
		return err
	}
	onChainHex := hex.EncodeToString(onChain[:])

	fmt.Printf("On-chain hash: %s\n", onChainHex)
	if item == nil || item.ContentHash == "" {
		fmt.Println("No local content hash recorded for this post.")
		return nil
	}

	fmt.Printf("Stored hash:   %s\n", item.ContentHash)
	if item.ContentHash == onChainHex {
		fmt.Println("MATCH: the published reply is the one sealed on-chain.")
		return nil
	}
	return fmt.Errorf("MISMATCH: registry hash differs from the stored reply hash")
}
