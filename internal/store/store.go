// Package store provides SQLite-backed persistence for sealbird.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tkaraden/sealbird/internal/models"
	_ "modernc.org/sqlite"
)

// Store provides access to the sealbird SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ErrStatusConflict indicates a guarded transition found the row in an
// unexpected status (or missing). The caller lost ownership of the row.
var ErrStatusConflict = fmt.Errorf("item not in expected status")

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		author TEXT NOT NULL,
		conversation_id TEXT,
		trusted INTEGER NOT NULL DEFAULT 0,
		processed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS knowledge_entries (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL UNIQUE,
		content TEXT NOT NULL,
		author TEXT NOT NULL,
		embedding BLOB,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (post_id) REFERENCES posts(id)
	);

	CREATE TABLE IF NOT EXISTS eval_queue (
		post_id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'pending',
		decision TEXT,
		reasoning TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (post_id) REFERENCES posts(id)
	);

	CREATE TABLE IF NOT EXISTS reply_queue (
		post_id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'pending',
		reply_content TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (post_id) REFERENCES posts(id)
	);

	CREATE TABLE IF NOT EXISTS pub_queue (
		id TEXT PRIMARY KEY,
		source_post_id TEXT NOT NULL,
		reply_content TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		reply_post_id TEXT,
		content_hash TEXT,
		tx_hash TEXT,
		tx_sent_height INTEGER,
		tx_confirmations INTEGER NOT NULL DEFAULT 0,
		submit_retries INTEGER NOT NULL DEFAULT 0,
		seal_post_id TEXT,
		failure_reason TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS verification_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reply_post_id TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata_updates (
		id TEXT PRIMARY KEY,
		chain_id INTEGER NOT NULL,
		contract_address TEXT NOT NULL,
		iteration_number INTEGER NOT NULL,
		project_address TEXT,
		old_content_id TEXT,
		new_content_id TEXT NOT NULL,
		tx_hash TEXT NOT NULL UNIQUE,
		tx_sent_height INTEGER NOT NULL,
		confirmations INTEGER NOT NULL DEFAULT 0,
		confirmed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS unpin_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content_id TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_posts_processed ON posts(processed, trusted);
	CREATE INDEX IF NOT EXISTS idx_eval_queue_status ON eval_queue(status);
	CREATE INDEX IF NOT EXISTS idx_reply_queue_status ON reply_queue(status);
	CREATE INDEX IF NOT EXISTS idx_pub_queue_status ON pub_queue(status);
	CREATE INDEX IF NOT EXISTS idx_metadata_updates_confirmed ON metadata_updates(confirmed);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Post Operations ---

// UpsertPost inserts a post if it is not already known. Existing rows are
// left untouched so the pipeline's processed flag survives re-ingestion.
func (s *Store) UpsertPost(p *models.Post) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.db.Exec(
		`INSERT INTO posts (id, content, author, conversation_id, trusted, processed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		p.ID, p.Content, p.Author, nullString(p.ConversationID), p.Trusted, p.Processed, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// GetPost retrieves a post by ID.
func (s *Store) GetPost(id string) (*models.Post, error) {
	post := &models.Post{}
	var conversationID sql.NullString

	err := s.db.QueryRow(
		`SELECT id, content, author, conversation_id, trusted, processed, created_at, updated_at FROM posts WHERE id = ?`,
		id,
	).Scan(&post.ID, &post.Content, &post.Author, &conversationID, &post.Trusted, &post.Processed, &post.CreatedAt, &post.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query post: %w", err)
	}
	if conversationID.Valid {
		post.ConversationID = conversationID.String
	}
	return post, nil
}

// ListUnprocessedPosts returns up to limit unprocessed posts with the given
// trust flag, oldest first.
func (s *Store) ListUnprocessedPosts(trusted bool, limit int) ([]models.Post, error) {
	rows, err := s.db.Query(
		`SELECT id, content, author, conversation_id, trusted, processed, created_at, updated_at
		 FROM posts WHERE processed = 0 AND trusted = ? ORDER BY created_at ASC LIMIT ?`,
		trusted, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var post models.Post
		var conversationID sql.NullString
		if err := rows.Scan(&post.ID, &post.Content, &post.Author, &conversationID, &post.Trusted, &post.Processed, &post.CreatedAt, &post.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if conversationID.Valid {
			post.ConversationID = conversationID.String
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// MarkPostProcessed flips the processed flag on a post.
func (s *Store) MarkPostProcessed(id string) error {
	_, err := s.db.Exec(
		`UPDATE posts SET processed = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	return err
}

// ThreadContext returns the other posts of a conversation, oldest first,
// capped at limit. An empty conversation id yields no context.
func (s *Store) ThreadContext(conversationID, excludePostID string, limit int) ([]models.Post, error) {
	if conversationID == "" {
		return nil, nil
	}

	rows, err := s.db.Query(
		`SELECT id, content, author, conversation_id, trusted, processed, created_at, updated_at
		 FROM posts WHERE conversation_id = ? AND id != ? ORDER BY created_at ASC LIMIT ?`,
		conversationID, excludePostID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var post models.Post
		var cid sql.NullString
		if err := rows.Scan(&post.ID, &post.Content, &post.Author, &cid, &post.Trusted, &post.Processed, &post.CreatedAt, &post.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan thread post: %w", err)
		}
		if cid.Valid {
			post.ConversationID = cid.String
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// --- Knowledge Operations ---

// CreateKnowledgeEntry promotes a post into the knowledge base. Repeating
// the call for the same post is a no-op.
func (s *Store) CreateKnowledgeEntry(postID, content, author string) (*models.KnowledgeEntry, error) {
	now := time.Now().UTC()
	entry := &models.KnowledgeEntry{
		ID:        uuid.New().String(),
		PostID:    postID,
		Content:   content,
		Author:    author,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.Exec(
		`INSERT INTO knowledge_entries (id, post_id, content, author, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(post_id) DO NOTHING`,
		entry.ID, entry.PostID, entry.Content, entry.Author, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert knowledge entry: %w", err)
	}
	return entry, nil
}

// ListKnowledgeEntries returns up to limit entries, newest first.
func (s *Store) ListKnowledgeEntries(limit int) ([]models.KnowledgeEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, post_id, content, author, embedding, created_at, updated_at
		 FROM knowledge_entries ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query knowledge entries: %w", err)
	}
	defer rows.Close()

	var entries []models.KnowledgeEntry
	for rows.Next() {
		var entry models.KnowledgeEntry
		if err := rows.Scan(&entry.ID, &entry.PostID, &entry.Content, &entry.Author, &entry.Embedding, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan knowledge entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListUnembeddedEntries returns entries still waiting for an embedding,
// oldest first.
func (s *Store) ListUnembeddedEntries(limit int) ([]models.KnowledgeEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, post_id, content, author, embedding, created_at, updated_at
		 FROM knowledge_entries WHERE embedding IS NULL ORDER BY created_at ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query unembedded entries: %w", err)
	}
	defer rows.Close()

	var entries []models.KnowledgeEntry
	for rows.Next() {
		var entry models.KnowledgeEntry
		if err := rows.Scan(&entry.ID, &entry.PostID, &entry.Content, &entry.Author, &entry.Embedding, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan unembedded entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SetKnowledgeEmbedding stores the vector blob for an entry.
func (s *Store) SetKnowledgeEmbedding(id string, embedding []byte) error {
	_, err := s.db.Exec(
		`UPDATE knowledge_entries SET embedding = ?, updated_at = ? WHERE id = ?`,
		embedding, time.Now().UTC(), id,
	)
	return err
}

// --- Evaluation Queue Operations ---

// EnqueueEvaluation queues a post for AI evaluation. Repeating the call
// for the same post is a no-op.
func (s *Store) EnqueueEvaluation(postID string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO eval_queue (post_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(post_id) DO NOTHING`,
		postID, models.EvalStatusPending, now, now,
	)
	if err != nil {
		return fmt.Errorf("enqueue evaluation: %w", err)
	}
	return nil
}

// ListEvalItems returns up to limit items in the given status, oldest first.
func (s *Store) ListEvalItems(status models.EvalStatus, limit int) ([]models.EvalQueueItem, error) {
	rows, err := s.db.Query(
		`SELECT post_id, status, decision, reasoning, created_at, updated_at
		 FROM eval_queue WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query eval queue: %w", err)
	}
	defer rows.Close()

	var items []models.EvalQueueItem
	for rows.Next() {
		var item models.EvalQueueItem
		var decision, reasoning sql.NullString
		if err := rows.Scan(&item.PostID, &item.Status, &decision, &reasoning, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan eval item: %w", err)
		}
		if decision.Valid {
			item.Decision = models.Decision(decision.String)
		}
		if reasoning.Valid {
			item.Reasoning = reasoning.String
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetEvalItem retrieves one evaluation queue item.
func (s *Store) GetEvalItem(postID string) (*models.EvalQueueItem, error) {
	item := &models.EvalQueueItem{}
	var decision, reasoning sql.NullString

	err := s.db.QueryRow(
		`SELECT post_id, status, decision, reasoning, created_at, updated_at FROM eval_queue WHERE post_id = ?`,
		postID,
	).Scan(&item.PostID, &item.Status, &decision, &reasoning, &item.CreatedAt, &item.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query eval item: %w", err)
	}
	if decision.Valid {
		item.Decision = models.Decision(decision.String)
	}
	if reasoning.Valid {
		item.Reasoning = reasoning.String
	}
	return item, nil
}

// MarkEvaluating is best-effort bookkeeping before the AI call, not a lock.
func (s *Store) MarkEvaluating(postID string) error {
	_, err := s.db.Exec(
		`UPDATE eval_queue SET status = ?, updated_at = ? WHERE post_id = ? AND status = ?`,
		models.EvalStatusEvaluating, time.Now().UTC(), postID, models.EvalStatusPending,
	)
	return err
}

// ResetEvaluation puts an item back to pending after a failed attempt.
func (s *Store) ResetEvaluation(postID string) error {
	_, err := s.db.Exec(
		`UPDATE eval_queue SET status = ?, updated_at = ? WHERE post_id = ? AND status = ?`,
		models.EvalStatusPending, time.Now().UTC(), postID, models.EvalStatusEvaluating,
	)
	return err
}

// CompleteEvaluation records the AI decision and, for RESPOND, enqueues
// reply generation in the same transaction.
func (s *Store) CompleteEvaluation(postID string, decision models.Decision, reasoning string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	result, err := tx.Exec(
		`UPDATE eval_queue SET status = ?, decision = ?, reasoning = ?, updated_at = ? WHERE post_id = ? AND status != ?`,
		models.EvalStatusDone, decision, reasoning, now, postID, models.EvalStatusDone,
	)
	if err != nil {
		return fmt.Errorf("update eval item: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStatusConflict
	}

	if decision == models.DecisionRespond {
		_, err = tx.Exec(
			`INSERT INTO reply_queue (post_id, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(post_id) DO NOTHING`,
			postID, models.ReplyStatusPending, now, now,
		)
		if err != nil {
			return fmt.Errorf("enqueue reply: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// --- Reply Queue Operations ---

// ListReplyItems returns up to limit items in the given status, oldest first.
func (s *Store) ListReplyItems(status models.ReplyStatus, limit int) ([]models.ReplyQueueItem, error) {
	rows, err := s.db.Query(
		`SELECT post_id, status, reply_content, created_at, updated_at
		 FROM reply_queue WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query reply queue: %w", err)
	}
	defer rows.Close()

	var items []models.ReplyQueueItem
	for rows.Next() {
		var item models.ReplyQueueItem
		var content sql.NullString
		if err := rows.Scan(&item.PostID, &item.Status, &content, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reply item: %w", err)
		}
		if content.Valid {
			item.ReplyContent = content.String
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetReplyItem retrieves one reply queue item.
func (s *Store) GetReplyItem(postID string) (*models.ReplyQueueItem, error) {
	item := &models.ReplyQueueItem{}
	var content sql.NullString

	err := s.db.QueryRow(
		`SELECT post_id, status, reply_content, created_at, updated_at FROM reply_queue WHERE post_id = ?`,
		postID,
	).Scan(&item.PostID, &item.Status, &content, &item.CreatedAt, &item.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query reply item: %w", err)
	}
	if content.Valid {
		item.ReplyContent = content.String
	}
	return item, nil
}

// MarkGenerating is best-effort bookkeeping before the AI call, not a lock.
func (s *Store) MarkGenerating(postID string) error {
	_, err := s.db.Exec(
		`UPDATE reply_queue SET status = ?, updated_at = ? WHERE post_id = ? AND status = ?`,
		models.ReplyStatusGenerating, time.Now().UTC(), postID, models.ReplyStatusPending,
	)
	return err
}

// ResetReply puts an item back to pending after a failed attempt.
func (s *Store) ResetReply(postID string) error {
	_, err := s.db.Exec(
		`UPDATE reply_queue SET status = ?, updated_at = ? WHERE post_id = ? AND status = ?`,
		models.ReplyStatusPending, time.Now().UTC(), postID, models.ReplyStatusGenerating,
	)
	return err
}

// CompleteReply stores the generated text and enqueues publication in the
// same transaction.
func (s *Store) CompleteReply(postID, replyContent string) (*models.PubQueueItem, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	result, err := tx.Exec(
		`UPDATE reply_queue SET status = ?, reply_content = ?, updated_at = ? WHERE post_id = ? AND status != ?`,
		models.ReplyStatusDone, replyContent, now, postID, models.ReplyStatusDone,
	)
	if err != nil {
		return nil, fmt.Errorf("update reply item: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrStatusConflict
	}

	item := &models.PubQueueItem{
		ID:           uuid.New().String(),
		SourcePostID: postID,
		ReplyContent: replyContent,
		Status:       models.PubStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = tx.Exec(
		`INSERT INTO pub_queue (id, source_post_id, reply_content, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.SourcePostID, item.ReplyContent, item.Status, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue publication: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return item, nil
}

// --- Publication Queue Operations ---

// ListPubItems returns up to limit items in any of the given statuses,
// oldest first.
func (s *Store) ListPubItems(limit int, statuses ...models.PubStatus) ([]models.PubQueueItem, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(statuses)+1)
	for _, st := range statuses {
		args = append(args, st)
	}
	args = append(args, limit)

	rows, err := s.db.Query(
		`SELECT id, source_post_id, reply_content, status, reply_post_id, content_hash, tx_hash, tx_sent_height,
		        tx_confirmations, submit_retries, seal_post_id, failure_reason, created_at, updated_at
		 FROM pub_queue WHERE status IN (`+placeholders+`) ORDER BY created_at ASC LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query pub queue: %w", err)
	}
	defer rows.Close()

	var items []models.PubQueueItem
	for rows.Next() {
		item, err := scanPubItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// GetPubItem retrieves a publication queue item by ID.
func (s *Store) GetPubItem(id string) (*models.PubQueueItem, error) {
	row := s.db.QueryRow(
		`SELECT id, source_post_id, reply_content, status, reply_post_id, content_hash, tx_hash, tx_sent_height,
		        tx_confirmations, submit_retries, seal_post_id, failure_reason, created_at, updated_at
		 FROM pub_queue WHERE id = ?`,
		id,
	)

	item, err := scanPubItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// GetPubItemBySource retrieves the most recent publication for a source
// post.
func (s *Store) GetPubItemBySource(sourcePostID string) (*models.PubQueueItem, error) {
	row := s.db.QueryRow(
		`SELECT id, source_post_id, reply_content, status, reply_post_id, content_hash, tx_hash, tx_sent_height,
		        tx_confirmations, submit_retries, seal_post_id, failure_reason, created_at, updated_at
		 FROM pub_queue WHERE source_post_id = ? ORDER BY created_at DESC LIMIT 1`,
		sourcePostID,
	)

	item, err := scanPubItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPubItem(row rowScanner) (*models.PubQueueItem, error) {
	item := &models.PubQueueItem{}
	var replyPostID, contentHash, txHash, sealPostID, failureReason sql.NullString
	var txSentHeight sql.NullInt64

	err := row.Scan(
		&item.ID, &item.SourcePostID, &item.ReplyContent, &item.Status,
		&replyPostID, &contentHash, &txHash, &txSentHeight,
		&item.Confirmations, &item.SubmitRetries, &sealPostID, &failureReason,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan pub item: %w", err)
	}

	if replyPostID.Valid {
		item.ReplyPostID = replyPostID.String
	}
	if contentHash.Valid {
		item.ContentHash = contentHash.String
	}
	if txHash.Valid {
		item.TxHash = txHash.String
	}
	if txSentHeight.Valid {
		item.TxSentHeight = uint64(txSentHeight.Int64)
	}
	if sealPostID.Valid {
		item.SealPostID = sealPostID.String
	}
	if failureReason.Valid {
		item.FailureReason = failureReason.String
	}
	return item, nil
}

// MarkPublished transitions pending -> published, recording the social post
// id and the content hash together.
func (s *Store) MarkPublished(id, replyPostID, contentHash string) error {
	result, err := s.db.Exec(
		`UPDATE pub_queue SET status = ?, reply_post_id = ?, content_hash = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.PubStatusPublished, replyPostID, contentHash, time.Now().UTC(), id, models.PubStatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return requireTransition(result)
}

// MarkTxSubmitted transitions published -> tx_submitted, recording the
// transaction hash and submission height, and appends the verification
// record in the same transaction.
func (s *Store) MarkTxSubmitted(id, txHash string, height uint64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var replyPostID, contentHash string
	err = tx.QueryRow(
		`SELECT reply_post_id, content_hash FROM pub_queue WHERE id = ? AND status = ?`,
		id, models.PubStatusPublished,
	).Scan(&replyPostID, &contentHash)
	if err == sql.ErrNoRows {
		return ErrStatusConflict
	}
	if err != nil {
		return fmt.Errorf("query pub item: %w", err)
	}

	result, err := tx.Exec(
		`UPDATE pub_queue SET status = ?, tx_hash = ?, tx_sent_height = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.PubStatusTxSubmitted, txHash, height, now, id, models.PubStatusPublished,
	)
	if err != nil {
		return fmt.Errorf("mark tx submitted: %w", err)
	}
	if err := requireTransition(result); err != nil {
		return err
	}

	_, err = tx.Exec(
		`INSERT INTO verification_records (reply_post_id, content_hash, tx_hash, created_at) VALUES (?, ?, ?, ?)`,
		replyPostID, contentHash, txHash, now,
	)
	if err != nil {
		return fmt.Errorf("append verification record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SetConfirmations persists an observed confirmation count below the
// finality threshold. The first observation moves tx_submitted forward to
// confirmed; the status never moves back.
func (s *Store) SetConfirmations(id string, count uint64) error {
	result, err := s.db.Exec(
		`UPDATE pub_queue SET tx_confirmations = ?,
		        status = CASE WHEN status = ? THEN ? ELSE status END,
		        updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		count, models.PubStatusTxSubmitted, models.PubStatusConfirmed,
		time.Now().UTC(), id, models.PubStatusTxSubmitted, models.PubStatusConfirmed,
	)
	if err != nil {
		return fmt.Errorf("set confirmations: %w", err)
	}
	return requireTransition(result)
}

// MarkFinal transitions a tracked item to final once the confirmation
// threshold is met.
func (s *Store) MarkFinal(id string, count uint64) error {
	result, err := s.db.Exec(
		`UPDATE pub_queue SET status = ?, tx_confirmations = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		models.PubStatusFinal, count, time.Now().UTC(), id, models.PubStatusTxSubmitted, models.PubStatusConfirmed,
	)
	if err != nil {
		return fmt.Errorf("mark final: %w", err)
	}
	return requireTransition(result)
}

// SetSealPostID records the seal reply id after finality. Best-effort; the
// item is already final.
func (s *Store) SetSealPostID(id, sealPostID string) error {
	_, err := s.db.Exec(
		`UPDATE pub_queue SET seal_post_id = ?, updated_at = ? WHERE id = ? AND status = ?`,
		sealPostID, time.Now().UTC(), id, models.PubStatusFinal,
	)
	return err
}

// UpdateResubmission swaps in a fresh transaction after the previous one
// disappeared, bumping the retry counter. Status stays tx_submitted.
func (s *Store) UpdateResubmission(id, txHash string, height uint64) error {
	result, err := s.db.Exec(
		`UPDATE pub_queue SET tx_hash = ?, tx_sent_height = ?, submit_retries = submit_retries + 1, updated_at = ?
		 WHERE id = ? AND status = ?`,
		txHash, height, time.Now().UTC(), id, models.PubStatusTxSubmitted,
	)
	if err != nil {
		return fmt.Errorf("update resubmission: %w", err)
	}
	return requireTransition(result)
}

// MarkPubFailed transitions an item to the terminal failed status with a
// human-readable reason. Final and already-failed items are left alone.
func (s *Store) MarkPubFailed(id, reason string) error {
	result, err := s.db.Exec(
		`UPDATE pub_queue SET status = ?, failure_reason = ?, updated_at = ? WHERE id = ? AND status NOT IN (?, ?)`,
		models.PubStatusFailed, reason, time.Now().UTC(), id, models.PubStatusFinal, models.PubStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireTransition(result)
}

// CountPubByStatus returns the number of publication items per status.
func (s *Store) CountPubByStatus() (map[models.PubStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM pub_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count pub queue: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.PubStatus]int)
	for rows.Next() {
		var status models.PubStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func requireTransition(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// --- Verification Record Operations ---

// ListVerificationRecords returns the most recent audit records.
func (s *Store) ListVerificationRecords(limit int) ([]models.VerificationRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, reply_post_id, content_hash, tx_hash, created_at
		 FROM verification_records ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query verification records: %w", err)
	}
	defer rows.Close()

	var records []models.VerificationRecord
	for rows.Next() {
		var rec models.VerificationRecord
		if err := rows.Scan(&rec.ID, &rec.ReplyPostID, &rec.ContentHash, &rec.TxHash, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan verification record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// --- Metadata Update Operations ---

// CreateMetadataUpdate registers a submitted metadata transaction for
// confirmation tracking. The tx hash is unique; re-registering is a no-op.
func (s *Store) CreateMetadataUpdate(u *models.MetadataUpdate) error {
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	_, err := s.db.Exec(
		`INSERT INTO metadata_updates (id, chain_id, contract_address, iteration_number, project_address,
		        old_content_id, new_content_id, tx_hash, tx_sent_height, confirmations, confirmed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tx_hash) DO NOTHING`,
		u.ID, u.ChainID, u.ContractAddress, u.IterationNumber, nullString(u.ProjectAddress),
		nullString(u.OldContentID), u.NewContentID, u.TxHash, u.TxSentHeight, u.Confirmations, u.Confirmed,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert metadata update: %w", err)
	}
	return nil
}

// GetMetadataUpdate retrieves a metadata update by ID.
func (s *Store) GetMetadataUpdate(id string) (*models.MetadataUpdate, error) {
	u := &models.MetadataUpdate{}
	var projectAddress, oldContentID sql.NullString

	err := s.db.QueryRow(
		`SELECT id, chain_id, contract_address, iteration_number, project_address, old_content_id, new_content_id,
		        tx_hash, tx_sent_height, confirmations, confirmed, created_at, updated_at
		 FROM metadata_updates WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.ChainID, &u.ContractAddress, &u.IterationNumber, &projectAddress, &oldContentID, &u.NewContentID,
		&u.TxHash, &u.TxSentHeight, &u.Confirmations, &u.Confirmed, &u.CreatedAt, &u.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query metadata update: %w", err)
	}
	if projectAddress.Valid {
		u.ProjectAddress = projectAddress.String
	}
	if oldContentID.Valid {
		u.OldContentID = oldContentID.String
	}
	return u, nil
}

// ListUnconfirmedMetadataUpdates returns up to limit unconfirmed rows,
// oldest first.
func (s *Store) ListUnconfirmedMetadataUpdates(limit int) ([]models.MetadataUpdate, error) {
	rows, err := s.db.Query(
		`SELECT id, chain_id, contract_address, iteration_number, project_address, old_content_id, new_content_id,
		        tx_hash, tx_sent_height, confirmations, confirmed, created_at, updated_at
		 FROM metadata_updates WHERE confirmed = 0 ORDER BY created_at ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query metadata updates: %w", err)
	}
	defer rows.Close()

	var updates []models.MetadataUpdate
	for rows.Next() {
		var u models.MetadataUpdate
		var projectAddress, oldContentID sql.NullString
		if err := rows.Scan(&u.ID, &u.ChainID, &u.ContractAddress, &u.IterationNumber, &projectAddress, &oldContentID,
			&u.NewContentID, &u.TxHash, &u.TxSentHeight, &u.Confirmations, &u.Confirmed, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan metadata update: %w", err)
		}
		if projectAddress.Valid {
			u.ProjectAddress = projectAddress.String
		}
		if oldContentID.Valid {
			u.OldContentID = oldContentID.String
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

// SetMetadataConfirmations persists an observed confirmation count below
// the threshold. Already-confirmed rows are left alone.
func (s *Store) SetMetadataConfirmations(id string, count uint64) error {
	_, err := s.db.Exec(
		`UPDATE metadata_updates SET confirmations = ?, updated_at = ? WHERE id = ? AND confirmed = 0`,
		count, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set metadata confirmations: %w", err)
	}
	return nil
}

// ConfirmMetadataUpdate marks a row confirmed and, when it supersedes old
// content, queues that content for unpinning in the same transaction.
// Calling it again for an already-confirmed row is a no-op.
func (s *Store) ConfirmMetadataUpdate(id string, count uint64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var oldContentID sql.NullString
	err = tx.QueryRow(
		`SELECT old_content_id FROM metadata_updates WHERE id = ? AND confirmed = 0`,
		id,
	).Scan(&oldContentID)
	if err == sql.ErrNoRows {
		// Already confirmed (or unknown): nothing to do, and no second
		// unpin row must ever be queued.
		return nil
	}
	if err != nil {
		return fmt.Errorf("query metadata update: %w", err)
	}

	_, err = tx.Exec(
		`UPDATE metadata_updates SET confirmed = 1, confirmations = ?, updated_at = ? WHERE id = ? AND confirmed = 0`,
		count, now, id,
	)
	if err != nil {
		return fmt.Errorf("confirm metadata update: %w", err)
	}

	if oldContentID.Valid && oldContentID.String != "" {
		_, err = tx.Exec(
			`INSERT INTO unpin_queue (content_id, created_at) VALUES (?, ?)`,
			oldContentID.String, now,
		)
		if err != nil {
			return fmt.Errorf("enqueue unpin: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// --- Unpin Queue Operations ---

// ListUnpinItems returns up to limit queued content ids, oldest first.
func (s *Store) ListUnpinItems(limit int) ([]models.UnpinItem, error) {
	rows, err := s.db.Query(
		`SELECT id, content_id, created_at FROM unpin_queue ORDER BY id ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query unpin queue: %w", err)
	}
	defer rows.Close()

	var items []models.UnpinItem
	for rows.Next() {
		var item models.UnpinItem
		if err := rows.Scan(&item.ID, &item.ContentID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan unpin item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteUnpinItem removes a completed unpin job.
func (s *Store) DeleteUnpinItem(id int64) error {
	_, err := s.db.Exec(`DELETE FROM unpin_queue WHERE id = ?`, id)
	return err
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
