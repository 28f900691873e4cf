// Package config loads sealbird configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every knob the pipeline consumes. Values not set in the
// environment fall back to the defaults below.
type Config struct {
	DBPath string

	// BotAuthor is the pipeline's own account handle, used for self-reply
	// suppression and seal replies.
	BotAuthor string

	// Poll intervals, one per worker.
	KnowledgeInterval time.Duration
	BackfillInterval  time.Duration
	EvalInterval      time.Duration
	ReplyInterval     time.Duration
	PublishInterval   time.Duration
	ConfirmInterval   time.Duration
	RetryInterval     time.Duration
	MetadataInterval  time.Duration
	UnpinInterval     time.Duration

	BatchSize         int
	MetadataBatchSize int

	ConfirmationThreshold uint64
	RetryGraceBlocks      uint64
	MaxSubmitRetries      int

	// Primary chain for reply verification.
	ChainID         uint64
	RPCEndpoint     string
	ContractAddress string
	SubmitterKey    string
	ExplorerURL     string

	// Metadata tracking may span several chains. MetadataChainID, when
	// non-zero, restricts the tracker to that single chain.
	MetadataChainID      uint64
	MetadataRPCEndpoints map[uint64]string

	GeminiAPIKey string

	XAPIKey       string
	XAPISecret    string
	XAccessToken  string
	XAccessSecret string

	EmbeddingsURL   string
	EmbeddingsModel string

	IPFSAPIURL string

	KnowledgeTopK      int
	MinSimilarity      float64
	ThreadContextLimit int
	KnowledgeCorpus    int
}

// Load reads a .env file if present and builds the configuration from the
// environment.
func Load() (*Config, error) {
	godotenv.Load()

	homeDir, _ := os.UserHomeDir()
	defaultDB := filepath.Join(homeDir, ".sealbird", "sealbird.db")

	cfg := &Config{
		DBPath:    envString("SEALBIRD_DB", defaultDB),
		BotAuthor: envString("SEALBIRD_BOT_AUTHOR", ""),

		KnowledgeInterval: envDuration("SEALBIRD_KNOWLEDGE_INTERVAL", 2*time.Minute),
		BackfillInterval:  envDuration("SEALBIRD_BACKFILL_INTERVAL", 5*time.Minute),
		EvalInterval:      envDuration("SEALBIRD_EVAL_INTERVAL", time.Minute),
		ReplyInterval:     envDuration("SEALBIRD_REPLY_INTERVAL", time.Minute),
		PublishInterval:   envDuration("SEALBIRD_PUBLISH_INTERVAL", 30*time.Second),
		ConfirmInterval:   envDuration("SEALBIRD_CONFIRM_INTERVAL", 30*time.Second),
		RetryInterval:     envDuration("SEALBIRD_RETRY_INTERVAL", 2*time.Minute),
		MetadataInterval:  envDuration("SEALBIRD_METADATA_INTERVAL", time.Minute),
		UnpinInterval:     envDuration("SEALBIRD_UNPIN_INTERVAL", 5*time.Minute),

		BatchSize:         envInt("SEALBIRD_BATCH_SIZE", 10),
		MetadataBatchSize: envInt("SEALBIRD_METADATA_BATCH_SIZE", 100),

		ConfirmationThreshold: envUint("SEALBIRD_CONFIRMATION_THRESHOLD", 10),
		RetryGraceBlocks:      envUint("SEALBIRD_RETRY_GRACE_BLOCKS", 6),
		MaxSubmitRetries:      envInt("SEALBIRD_MAX_SUBMIT_RETRIES", 3),

		ChainID:         envUint("SEALBIRD_CHAIN_ID", 8453),
		RPCEndpoint:     envString("SEALBIRD_RPC_URL", ""),
		ContractAddress: envString("SEALBIRD_CONTRACT_ADDRESS", ""),
		SubmitterKey:    envString("SEALBIRD_SUBMITTER_KEY", ""),
		ExplorerURL:     envString("SEALBIRD_EXPLORER_URL", "https://basescan.org/tx/%s"),

		MetadataChainID: envUint("SEALBIRD_METADATA_CHAIN_ID", 0),

		GeminiAPIKey: envString("GEMINI_API_KEY", ""),

		XAPIKey:       envString("X_API_KEY", ""),
		XAPISecret:    envString("X_API_SECRET", ""),
		XAccessToken:  envString("X_ACCESS_TOKEN", ""),
		XAccessSecret: envString("X_ACCESS_SECRET", ""),

		EmbeddingsURL:   envString("SEALBIRD_EMBEDDINGS_URL", ""),
		EmbeddingsModel: envString("SEALBIRD_EMBEDDINGS_MODEL", "nomic-embed-text"),

		IPFSAPIURL: envString("SEALBIRD_IPFS_API", ""),

		KnowledgeTopK:      envInt("SEALBIRD_KNOWLEDGE_TOPK", 5),
		MinSimilarity:      envFloat("SEALBIRD_MIN_SIMILARITY", 0.3),
		ThreadContextLimit: envInt("SEALBIRD_THREAD_CONTEXT_LIMIT", 10),
		KnowledgeCorpus:    envInt("SEALBIRD_KNOWLEDGE_CORPUS", 200),
	}

	endpoints, err := ParseChainEndpoints(os.Getenv("SEALBIRD_METADATA_RPC_URLS"))
	if err != nil {
		return nil, err
	}
	cfg.MetadataRPCEndpoints = endpoints

	// The primary chain always participates in metadata tracking.
	if cfg.RPCEndpoint != "" {
		if _, ok := cfg.MetadataRPCEndpoints[cfg.ChainID]; !ok {
			cfg.MetadataRPCEndpoints[cfg.ChainID] = cfg.RPCEndpoint
		}
	}

	return cfg, nil
}

// Validate checks the settings the daemon cannot run without.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.RPCEndpoint == "" {
		return fmt.Errorf("SEALBIRD_RPC_URL is required")
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("SEALBIRD_CONTRACT_ADDRESS is required")
	}
	if c.SubmitterKey == "" {
		return fmt.Errorf("SEALBIRD_SUBMITTER_KEY is required")
	}
	if c.BotAuthor == "" {
		return fmt.Errorf("SEALBIRD_BOT_AUTHOR is required")
	}
	if c.ConfirmationThreshold == 0 {
		return fmt.Errorf("SEALBIRD_CONFIRMATION_THRESHOLD must be positive")
	}
	return nil
}

// SocialConfigured reports whether all four X credentials are present.
func (c *Config) SocialConfigured() bool {
	return c.XAPIKey != "" && c.XAPISecret != "" && c.XAccessToken != "" && c.XAccessSecret != ""
}

// ParseChainEndpoints parses a "chainID=url,chainID=url" list.
func ParseChainEndpoints(raw string) (map[uint64]string, error) {
	endpoints := make(map[uint64]string)
	if strings.TrimSpace(raw) == "" {
		return endpoints, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid chain endpoint %q (want chainID=url)", pair)
		}
		chainID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id in %q: %w", pair, err)
		}
		url := strings.TrimSpace(parts[1])
		if url == "" {
			return nil, fmt.Errorf("empty url for chain %d", chainID)
		}
		endpoints[chainID] = url
	}
	return endpoints, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envUint(key string, def uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
