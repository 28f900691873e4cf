// Package social publishes replies to the social network.
package social

import "context"

// Poster is the interface for the social network backend.
type Poster interface {
	// PostReply publishes text as a reply to the given post and returns
	// the ID of the created post.
	PostReply(ctx context.Context, inReplyTo, text string) (string, error)

	// IsConfigured reports whether credentials are present. When false,
	// publishing is skipped and queue items stay pending.
	IsConfigured() bool
}
