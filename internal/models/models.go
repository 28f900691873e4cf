// Package models defines the core domain types for sealbird.
package models

import "time"

// PubStatus represents the lifecycle state of a publication queue item.
type PubStatus string

const (
	PubStatusPending     PubStatus = "pending"
	PubStatusPublished   PubStatus = "published"
	PubStatusTxSubmitted PubStatus = "tx_submitted"
	PubStatusConfirmed   PubStatus = "confirmed"
	PubStatusFinal       PubStatus = "final"
	PubStatusFailed      PubStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s PubStatus) Terminal() bool {
	return s == PubStatusFinal || s == PubStatusFailed
}

// EvalStatus represents the state of an evaluation queue item.
type EvalStatus string

const (
	EvalStatusPending    EvalStatus = "pending"
	EvalStatusEvaluating EvalStatus = "evaluating"
	EvalStatusDone       EvalStatus = "done"
)

// ReplyStatus represents the state of a reply queue item.
type ReplyStatus string

const (
	ReplyStatusPending    ReplyStatus = "pending"
	ReplyStatusGenerating ReplyStatus = "generating"
	ReplyStatusDone       ReplyStatus = "done"
)

// Decision is the AI verdict on a post.
type Decision string

const (
	DecisionRespond Decision = "RESPOND"
	DecisionIgnore  Decision = "IGNORE"
	DecisionStop    Decision = "STOP"
)

// Post is a social-network post discovered by the external indexer.
// The pipeline only ever flips the Processed flag; everything else is
// owned by the indexer.
type Post struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Author         string    `json:"author"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Trusted        bool      `json:"trusted"`
	Processed      bool      `json:"processed"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// KnowledgeEntry is a trusted post promoted into the knowledge base.
// Embedding stays nil until the backfiller has vectorized the content.
type KnowledgeEntry struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	Embedding []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EvalQueueItem tracks the AI evaluation of one post. Terminal once a
// decision is recorded.
type EvalQueueItem struct {
	PostID    string     `json:"post_id"`
	Status    EvalStatus `json:"status"`
	Decision  Decision   `json:"decision,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ReplyQueueItem tracks reply generation for a post that earned a RESPOND.
type ReplyQueueItem struct {
	PostID       string      `json:"post_id"`
	Status       ReplyStatus `json:"status"`
	ReplyContent string      `json:"reply_content,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// PubQueueItem carries a generated reply through publication, on-chain
// submission, and confirmation tracking.
//
// Field validity follows the status: ReplyPostID and ContentHash are set
// from published onward, TxHash and TxSentHeight from tx_submitted onward.
type PubQueueItem struct {
	ID            string    `json:"id"`
	SourcePostID  string    `json:"source_post_id"`
	ReplyContent  string    `json:"reply_content"`
	Status        PubStatus `json:"status"`
	ReplyPostID   string    `json:"reply_post_id,omitempty"`
	ContentHash   string    `json:"content_hash,omitempty"`
	TxHash        string    `json:"tx_hash,omitempty"`
	TxSentHeight  uint64    `json:"tx_sent_height,omitempty"`
	Confirmations uint64    `json:"tx_confirmations"`
	SubmitRetries int       `json:"submit_retries"`
	SealPostID    string    `json:"seal_post_id,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// VerificationRecord is one append-only audit row per successful on-chain
// submission. Never mutated.
type VerificationRecord struct {
	ID          int64     `json:"id"`
	ReplyPostID string    `json:"reply_post_id"`
	ContentHash string    `json:"content_hash"`
	TxHash      string    `json:"tx_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// MetadataUpdate tracks confirmation of a metadata transaction already
// submitted on some chain. ProjectAddress empty means an iteration-level
// update.
type MetadataUpdate struct {
	ID              string    `json:"id"`
	ChainID         uint64    `json:"chain_id"`
	ContractAddress string    `json:"contract_address"`
	IterationNumber int64     `json:"iteration_number"`
	ProjectAddress  string    `json:"project_address,omitempty"`
	OldContentID    string    `json:"old_content_id,omitempty"`
	NewContentID    string    `json:"new_content_id"`
	TxHash          string    `json:"tx_hash"`
	TxSentHeight    uint64    `json:"tx_sent_height"`
	Confirmations   uint64    `json:"confirmations"`
	Confirmed       bool      `json:"confirmed"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UnpinItem queues superseded off-chain content for removal from the
// pinning service.
type UnpinItem struct {
	ID        int64     `json:"id"`
	ContentID string    `json:"content_id"`
	CreatedAt time.Time `json:"created_at"`
}
