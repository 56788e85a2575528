package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"lean-assistant/internal/ai"
	"lean-assistant/internal/app"
	"lean-assistant/internal/cache"
	"lean-assistant/internal/config"
	mysqlClient "lean-assistant/internal/platform/mysql"
	rabbitmqClient "lean-assistant/internal/platform/rabbitmq"
	redisClient "lean-assistant/internal/platform/redis"
	"lean-assistant/internal/vectorstore"
	chromemstore "lean-assistant/internal/vectorstore/chromem"
	"lean-assistant/internal/vectorstore/memory"
	mysqlstore "lean-assistant/internal/vectorstore/mysql"
	"lean-assistant/internal/vectorstore/qdrant"
	"lean-assistant/internal/worker"
)

// Options selects which parts of the process to start.
type Options struct {
	// Generation builds the LLM gateway. The ingest CLI runs without it.
	Generation bool
	// IngestWorker consumes the ingest queue when RabbitMQ is enabled.
	IngestWorker bool
}

// App holds the process-wide singletons. Optional infrastructure is nil when disabled.
type App struct {
	Config    *config.Config
	MySQL     *gorm.DB
	Redis     *redis.Client
	MQConn    *amqp.Connection
	Embedder  ai.Embedder
	Gateway   *ai.Gateway
	Index     vectorstore.Index
	Assistant *app.Assistant

	IngestPublisher *rabbitmqClient.IngestPublisher
	IngestWorker    *worker.IngestWorker

	StartedAt time.Time
}

func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	a := &App{Config: cfg, StartedAt: time.Now()}
	if err := a.init(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.Config

	if opts.Generation {
		gateway, err := ai.NewGateway(ctx, GatewayConfig(cfg))
		if err != nil {
			return fmt.Errorf("init llm gateway failed: %w", err)
		}
		a.Gateway = gateway
	}

	embedder, err := ai.NewEmbedder(ctx, EmbedderConfig(cfg))
	if err != nil {
		return fmt.Errorf("init embedder failed: %w", err)
	}
	a.Embedder = embedder

	if err := a.initIndex(ctx); err != nil {
		return err
	}

	var answerCache app.AnswerCache
	if cfg.Redis.Enabled {
		redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("redis unavailable, answer cache disabled: %v", err)
		} else {
			a.Redis = redisCli
			answerCache = cache.NewAnswerCache(redisCli, cfg.AnswerTTL())
		}
	}

	collection := cfg.VectorStore.Collection
	var synthesizer *app.Synthesizer
	if a.Gateway != nil {
		synthesizer = app.NewSynthesizer(a.Gateway, cfg.RAG.SystemPrompt, cfg.GenerationTimeout())
	}
	a.Assistant = app.NewAssistant(
		app.NewRetriever(a.Embedder, a.Index, collection, cfg.RAG.TopK),
		synthesizer,
		app.NewIngestService(a.Embedder, a.Index, app.IngestConfig{
			Collection:     collection,
			ChunkSize:      cfg.RAG.ChunkSize,
			ChunkOverlap:   cfg.RAG.ChunkOverlap,
			EmbedBatchSize: cfg.RAG.EmbedBatchSize,
		}),
		a.Index,
		collection,
		answerCache,
	)

	if cfg.RabbitMQ.Enabled {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.IngestQueue)
		if err != nil {
			return err
		}
		a.MQConn = mqConn
		a.IngestPublisher = rabbitmqClient.NewIngestPublisher(mqConn, cfg.RabbitMQ.IngestQueue)

		if opts.IngestWorker {
			ingestWorker := worker.NewIngestWorker(mqConn, a.Assistant, cfg.RabbitMQ.IngestQueue)
			if err := ingestWorker.Start(ctx); err != nil {
				return fmt.Errorf("start ingest worker failed: %w", err)
			}
			a.IngestWorker = ingestWorker
		}
	}
	return nil
}

func (a *App) initIndex(ctx context.Context) error {
	cfg := a.Config.VectorStore
	switch strings.ToLower(cfg.Backend) {
	case "qdrant":
		a.Index = qdrant.NewStorage(qdrant.Config{
			URL:       cfg.QdrantURL,
			APIKey:    cfg.QdrantAPIKey,
			BatchSize: cfg.BatchSize,
		})
	case "mysql":
		db, err := mysqlClient.New(ctx, a.Config.MySQLDSN())
		if err != nil {
			return err
		}
		a.MySQL = db
		store := mysqlstore.NewStorage(db, cfg.BatchSize)
		if err := store.Migrate(); err != nil {
			return fmt.Errorf("auto migrate tables failed: %w", err)
		}
		a.Index = store
	case "chromem":
		store, err := chromemstore.NewStorage(cfg.ChromemPath, cfg.ChromemCompress, cfg.BatchSize)
		if err != nil {
			return err
		}
		a.Index = store
	case "memory":
		a.Index = memory.NewStorage(cfg.BatchSize)
	default:
		return fmt.Errorf("unknown vector store backend %q", cfg.Backend)
	}
	return nil
}

// GatewayConfig maps application config onto the provider gateway settings.
func GatewayConfig(cfg *config.Config) ai.GatewayConfig {
	return ai.GatewayConfig{
		Provider:    cfg.LLM.Provider,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		HTTPTimeout: cfg.HTTPClientTimeout(),
		OpenAI: ai.ChatConfig{
			BaseURL: cfg.LLM.OpenAIBaseURL,
			APIKey:  cfg.LLM.OpenAIAPIKey,
			Model:   cfg.LLM.OpenAIModel,
		},
		Anthropic: ai.ChatConfig{
			BaseURL: cfg.LLM.AnthropicBaseURL,
			APIKey:  cfg.LLM.AnthropicAPIKey,
			Model:   cfg.LLM.AnthropicModel,
		},
		Gemini: ai.ChatConfig{
			BaseURL: cfg.LLM.GeminiBaseURL,
			APIKey:  cfg.LLM.GeminiAPIKey,
			Model:   cfg.LLM.GeminiModel,
		},
	}
}

func EmbedderConfig(cfg *config.Config) ai.EmbedderConfig {
	e := cfg.Embedding
	return ai.EmbedderConfig{
		Backend:           e.Backend,
		Model:             e.Model,
		Dimension:         e.Dimension,
		BaseURL:           e.BaseURL,
		APIKey:            e.APIKey,
		RequestsPerSecond: e.RequestsPerSecond,
		HTTPTimeout:       cfg.HTTPClientTimeout(),
		ModelPath:         e.ModelPath,
		VocabPath:         e.VocabPath,
		MaxSeqLength:      e.MaxSeqLength,
		ONNXSharedLibPath: e.ONNXSharedLibPath,
	}
}

func (a *App) Close() error {
	var errs []error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MySQL != nil {
		if err := mysqlClient.Close(a.MySQL); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Gateway != nil {
		if err := a.Gateway.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if closer, ok := a.Embedder.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
