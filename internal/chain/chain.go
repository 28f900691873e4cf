// Package chain records reply proofs on-chain and tracks confirmations.
package chain

import "context"

// Gateway is the chain surface used by the publish, confirmation and
// retry workers.
type Gateway interface {
	// CurrentBlockHeight returns the latest block number.
	CurrentBlockHeight(ctx context.Context) (uint64, error)

	// HasResponse reports whether the registry already records a response
	// for the source post.
	HasResponse(ctx context.Context, postID string) (bool, error)

	// GetResponse returns the content hash recorded for the source post.
	GetResponse(ctx context.Context, postID string) ([32]byte, error)

	// SubmitRecordResponse writes the reply proof to the registry and
	// returns the transaction hash. Fire and forget; confirmation is the
	// tracker's job.
	SubmitRecordResponse(ctx context.Context, replyPostID, sourcePostID string, contentHash [32]byte) (string, error)

	// TransactionConfirmations returns how many blocks deep the
	// transaction sits. A nil count means the chain has not observed the
	// transaction.
	TransactionConfirmations(ctx context.Context, txHash string) (*uint64, error)
}

// ConfirmationReader is the subset of Gateway needed to track transactions
// on chains sealbird does not write to.
type ConfirmationReader interface {
	CurrentBlockHeight(ctx context.Context) (uint64, error)
	TransactionConfirmations(ctx context.Context, txHash string) (*uint64, error)
}
