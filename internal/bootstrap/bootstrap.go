package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/pitchlabs/pitchscore/internal/config"
	"github.com/pitchlabs/pitchscore/internal/core/ports"
	"github.com/pitchlabs/pitchscore/internal/core/usecase"
	"github.com/pitchlabs/pitchscore/internal/infrastructure/blob/localfs"
	"github.com/pitchlabs/pitchscore/internal/infrastructure/chunking"
	"github.com/pitchlabs/pitchscore/internal/infrastructure/llm/ollama"
	natsqueue "github.com/pitchlabs/pitchscore/internal/infrastructure/queue/nats"
	"github.com/pitchlabs/pitchscore/internal/infrastructure/repository/memory"
	"github.com/pitchlabs/pitchscore/internal/infrastructure/repository/postgres"
	"github.com/pitchlabs/pitchscore/internal/infrastructure/resilience"
	"github.com/pitchlabs/pitchscore/internal/infrastructure/transcribe/whisper"
	"github.com/pitchlabs/pitchscore/internal/infrastructure/vector/memindex"
	"github.com/pitchlabs/pitchscore/internal/infrastructure/vector/qdrant"
	"github.com/pitchlabs/pitchscore/internal/observability/metrics"
)

// App holds every wired dependency. cmd/api and cmd/worker pull what they
// need from here instead of constructing adapters themselves.
type App struct {
	Config config.Config

	Store ports.TenantStore
	Blob  *localfs.Store
	Queue ports.MessageQueue

	Sessions ports.SessionLifecycle
	Scorer   ports.SessionScorer
	Ranker   *usecase.RankUseCase
	Indexer  ports.ContextIndexer

	ScoringMetrics *metrics.ScoringMetrics

	closeFn func()
}

func New(ctx context.Context, service string, cfg config.Config) (*App, error) {
	executor := resilience.NewExecutor(resilience.DefaultConfig())
	scoringMetrics := metrics.NewScoringMetrics(service)

	var store ports.TenantStore
	closers := make([]func(), 0, 2)
	switch cfg.StoreBackend {
	case "memory":
		store = memory.NewStore()
	case "postgres", "":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		pgStore := postgres.NewTenantStore(db, executor)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		store = pgStore
		closers = append(closers, func() { _ = db.Close() })
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	blob, err := localfs.New(cfg.BlobPath, cfg.BlobBaseURL, []byte(cfg.BlobSigningSecret))
	if err != nil {
		return nil, fmt.Errorf("init blob storage: %w", err)
	}

	queue, err := natsqueue.New(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	closers = append(closers, queue.Close)

	analyzer := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		RequestsPerSecond: cfg.AnalysisRPS,
		Burst:             cfg.AnalysisBurst,
		Executor:          executor,
	})

	transcriber := whisper.New(cfg.WhisperURL, cfg.WhisperModel, whisper.Options{
		Timeout:  time.Duration(cfg.TranscribeTimeoutSecs) * time.Second,
		Executor: executor,
	})

	var index ports.VectorIndex
	switch cfg.VectorBackend {
	case "memory":
		index = memindex.New()
	case "qdrant", "":
		index = qdrant.New(cfg.QdrantURL, cfg.QdrantCollectionPrefix)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	indexUC := usecase.NewIndexUseCase(chunker, analyzer, index, store)
	sessionUC := usecase.NewSessionUseCase(
		store, blob, transcriber, queue, indexUC,
		time.Duration(cfg.TranscribeTimeoutSecs)*time.Second,
	)
	rankUC := usecase.NewRankUseCase(store, usecase.RankingConfig{
		TieBreakCategory: cfg.TieBreakCategory,
		CacheTTL:         time.Duration(cfg.RankCacheTTLSecs) * time.Second,
	})
	scoreUC := usecase.NewScoreUseCase(store, indexUC, analyzer, rankUC, usecase.ScoringConfig{
		RubricTopK:      cfg.RubricTopK,
		TierTimeout:     time.Duration(cfg.TierTimeoutSecs) * time.Second,
		SponsorKeywords: cfg.SponsorKeywordList(),
		Observer:        scoringMetrics,
	})

	return &App{
		Config: cfg,

		Store: store,
		Blob:  blob,
		Queue: queue,

		Sessions: sessionUC,
		Scorer:   scoreUC,
		Ranker:   rankUC,
		Indexer:  indexUC,

		ScoringMetrics: scoringMetrics,

		closeFn: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
