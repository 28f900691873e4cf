// Package pin removes superseded content from the IPFS node.
package pin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"
)

// ErrNotPinned signals the content was not pinned to begin with. Callers
// treat it as success: the goal state is already reached.
var ErrNotPinned = errors.New("content not pinned")

// Client is the interface for the pinning backend.
type Client interface {
	// Unpin removes the pin for a content ID. Returns ErrNotPinned when
	// the node does not hold the pin.
	Unpin(ctx context.Context, contentID string) error
}

// IPFSClient talks to an IPFS node's HTTP API.
type IPFSClient struct {
	sh *shell.Shell
}

var _ Client = (*IPFSClient)(nil)

// NewIPFSClient connects to the IPFS API at the given address.
func NewIPFSClient(apiURL string) *IPFSClient {
	return &IPFSClient{sh: shell.NewShell(apiURL)}
}

// Unpin removes the pin for a content ID.
func (c *IPFSClient) Unpin(ctx context.Context, contentID string) error {
	err := c.sh.Request("pin/rm", contentID).Exec(ctx, nil)
	if err != nil {
		// The node may have garbage collected the pin already, or another
		// process raced us to it.
		if strings.Contains(err.Error(), "not pinned") {
			return ErrNotPinned
		}
		return fmt.Errorf("unpin %s: %w", contentID, err)
	}
	return nil
}
