package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tkaraden/sealbird/internal/ai"
	"github.com/tkaraden/sealbird/internal/chain"
	"github.com/tkaraden/sealbird/internal/config"
	"github.com/tkaraden/sealbird/internal/embeddings"
	"github.com/tkaraden/sealbird/internal/knowledge"
	"github.com/tkaraden/sealbird/internal/pin"
	"github.com/tkaraden/sealbird/internal/pipeline"
	"github.com/tkaraden/sealbird/internal/social"
	"github.com/tkaraden/sealbird/internal/store"
)

var debugLogging bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sealbird pipeline daemon",
	Long:  `Starts all pipeline workers and runs until interrupted.`,
	RunE:  runDaemon,
}

func init() {
	runCmd.Flags().BoolVar(&debugLogging, "debug", false, "Enable debug logging")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if debugLogging {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	s, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	brain, err := ai.NewGemini(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return err
	}

	poster := social.NewXClient(cfg.XAPIKey, cfg.XAPISecret, cfg.XAccessToken, cfg.XAccessSecret)
	if !poster.IsConfigured() {
		logger.Warn("social credentials missing, replies will stay queued")
	}

	gateway, err := chain.NewEthGateway(ctx, cfg.RPCEndpoint, cfg.ContractAddress, cfg.SubmitterKey, cfg.ChainID)
	if err != nil {
		return err
	}
	defer gateway.Close()

	readers, err := chain.DialReaders(ctx, cfg.MetadataRPCEndpoints)
	if err != nil {
		return err
	}

	var embedder embeddings.Embedder
	if cfg.EmbeddingsURL != "" {
		embedder = embeddings.NewHTTPClient(cfg.EmbeddingsURL, cfg.EmbeddingsModel)
	} else {
		logger.Warn("no embeddings endpoint, knowledge retrieval falls back to recency")
	}

	var pinner pin.Client
	if cfg.IPFSAPIURL != "" {
		pinner = pin.NewIPFSClient(cfg.IPFSAPIURL)
	}

	ranker := knowledge.NewRanker(s, embedder, cfg.KnowledgeTopK, cfg.MinSimilarity, cfg.KnowledgeCorpus)

	sched := pipeline.NewScheduler(logger,
		pipeline.NewIndexer(s, cfg.BatchSize, cfg.KnowledgeInterval, logger),
		pipeline.NewBackfiller(s, embedder, cfg.BatchSize, cfg.BackfillInterval, logger),
		pipeline.NewEvaluator(s, brain, ranker, cfg.BotAuthor, cfg.BatchSize, cfg.ThreadContextLimit, cfg.EvalInterval, logger),
		pipeline.NewGenerator(s, brain, ranker, cfg.BatchSize, cfg.ThreadContextLimit, cfg.ReplyInterval, logger),
		pipeline.NewPublisher(s, poster, gateway, cfg.BatchSize, cfg.PublishInterval, logger),
		pipeline.NewConfirmer(s, gateway, poster, cfg.ExplorerURL, cfg.ConfirmationThreshold, cfg.BatchSize, cfg.ConfirmInterval, logger),
		pipeline.NewRetrier(s, gateway, cfg.RetryGraceBlocks, cfg.MaxSubmitRetries, cfg.BatchSize, cfg.RetryInterval, logger),
		pipeline.NewMetadataTracker(s, readers, cfg.MetadataChainID, cfg.ConfirmationThreshold, cfg.MetadataBatchSize, cfg.MetadataInterval, logger),
		pipeline.NewUnpinner(s, pinner, cfg.MetadataBatchSize, cfg.UnpinInterval, logger),
	)

	logger.Info("starting sealbird daemon",
		"db", cfg.DBPath,
		"chain_id", cfg.ChainID,
		"confirmation_threshold", cfg.ConfirmationThreshold,
	)

	if err := sched.Run(ctx); err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
