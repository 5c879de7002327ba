package app

import (
	"context"
	"fmt"
	"time"

	"github.com/docchat-ai/docchat/internal/config"
	"github.com/docchat-ai/docchat/internal/core"
	db "github.com/docchat-ai/docchat/internal/core/database"
	"github.com/docchat-ai/docchat/internal/core/ingestion_engine"
	"github.com/docchat-ai/docchat/internal/core/llm"
	objectclient "github.com/docchat-ai/docchat/internal/core/object-client"
	"github.com/docchat-ai/docchat/internal/core/vectorindex"
	"github.com/docchat-ai/docchat/internal/logger"
	"github.com/docchat-ai/docchat/internal/services"
)

// App owns every long-lived component and wires them together.
type App struct {
	Log      *logger.Logger
	DBClient *db.DatabaseClient
	Index    core.VectorIndex
	Ingestor ingestion_engine.Ingestor
	Server   *Server

	cancelWorkers context.CancelFunc
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(startCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("database initialized and ready")

	// The index shares the database pool; the chunk store and the
	// vector store commit in the same place.
	index := vectorindex.NewPgVectorIndex(dbClient.DB(), cfg.RetrievalMinScore)

	objClient, err := objectclient.NewS3Client(startCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("object client initialized and ready")

	embedder, err := llm.NewGeminiEmbedder(startCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}
	llmProvider, err := llm.NewGeminiLLM(startCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("initialize llm: %w", err)
	}

	extractor := ingestion_engine.NewDocconvExtractor(false)
	ingCfg := &ingestion_engine.IngestConfig{
		MaxTokens:     cfg.ChunkMaxTokens,
		OverlapTokens: cfg.ChunkOverlapTokens,
		BatchSize:     cfg.EmbedBatchSize,
		MaxAttempts:   cfg.EmbedMaxAttempts,
	}
	ingestor := ingestion_engine.NewDocumentIngestor(
		dbClient, objClient, index, embedder, extractor, ingCfg, cfg.BucketName, log,
	)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	ingestor.Start(workerCtx, cfg.IngestWorkers)

	userSvc := services.NewUserService(dbClient)
	docSvc := services.NewDocumentService(dbClient, objClient, index, ingestor, cfg.BucketName, log)
	chatSvc := services.NewChatService(dbClient, index, embedder, llmProvider, cfg.RetrievalTopK, cfg.HistoryWindow, log)

	server := NewServer(cfg, log, userSvc, docSvc, chatSvc)

	return &App{
		Log:           log,
		DBClient:      dbClient,
		Index:         index,
		Ingestor:      ingestor,
		Server:        server,
		cancelWorkers: cancelWorkers,
	}, nil
}

func (a *App) Close() {
	if a.cancelWorkers != nil {
		a.cancelWorkers()
	}
	if a.Index != nil {
		_ = a.Index.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
