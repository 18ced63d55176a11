package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/qforge/internal/content"
	"github.com/abhisek/qforge/internal/embedding"
	"github.com/abhisek/qforge/internal/llm"
	"github.com/abhisek/qforge/internal/metrics"
	"github.com/abhisek/qforge/internal/orchestrator"
	"github.com/abhisek/qforge/internal/platform/cache"
	"github.com/abhisek/qforge/internal/platform/config"
	"github.com/abhisek/qforge/internal/platform/database"
	"github.com/abhisek/qforge/internal/platform/logger"
	"github.com/abhisek/qforge/internal/policy"
	"github.com/abhisek/qforge/internal/questiongen"
	"github.com/abhisek/qforge/internal/store"
	"github.com/abhisek/qforge/internal/validation"
)

// runtime holds the dependencies shared by commands. Optional backends
// (Postgres, Redis) are nil when not configured.
type runtime struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *store.Store
	db       *database.DB
	cache    *cache.Cache
	policies *policy.Registry
	contents content.Store
	embedder embedding.Embedder

	questions store.QuestionRepo
	pgMetrics *metrics.PostgresSink

	stopReload func()
}

// openRuntime loads configuration and opens every configured backend.
func openRuntime(cmd *cobra.Command) (*runtime, error) {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	rt := &runtime{cfg: cfg, log: log}

	dbPath, err := resolveDBPath(cmd, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	rt.store, err = store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	rt.questions = rt.store.QuestionRepo()

	table, err := policy.LoadDir(cfg.PolicyDir)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("load policies: %w", err)
	}
	rt.policies = policy.NewRegistry(table)
	rt.watchPolicies(ctx)

	rt.embedder = newEmbedder(cfg.Embedding)

	if err := rt.openPostgres(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	if rt.contents == nil {
		log.Warn("QFORGE_DATABASE_URL not set, using an empty in-memory content store")
		rt.contents = content.NewMemoryStore()
	}

	if cfg.HasCache() {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			log.Warn("redis unavailable, retrieval cache disabled", zap.Error(err))
		} else {
			rt.cache = c
		}
	}
	return rt, nil
}

func (rt *runtime) openPostgres(ctx context.Context) error {
	if !rt.cfg.HasDatabase() {
		return nil
	}
	db, err := database.New(ctx, rt.cfg.Database.URL, rt.cfg.Database.MaxConns, rt.cfg.Database.MinConns)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	rt.db = db
	if err := db.EnsureVectorExtension(ctx); err != nil {
		return err
	}

	pg, err := content.NewPGVectorStore(db.Pool, rt.cfg.Embedding.Dimension)
	if err != nil {
		return err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		return err
	}
	rt.contents = pg

	questions, err := store.NewPostgresQuestionRepo(db.Pool)
	if err != nil {
		return err
	}
	if err := questions.EnsureSchema(ctx); err != nil {
		return err
	}
	rt.questions = questions

	sink, err := metrics.NewPostgresSink(db.Pool, rt.log)
	if err != nil {
		return err
	}
	if err := sink.EnsureSchema(ctx); err != nil {
		return err
	}
	rt.pgMetrics = sink
	return nil
}

// watchPolicies reloads the policy directory on SIGHUP while the runtime
// is open.
func (rt *runtime) watchPolicies(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP)
	rt.stopReload = func() {
		signal.Stop(sig)
		cancel()
	}

	load := func() (*policy.Table, error) { return policy.LoadDir(rt.cfg.PolicyDir) }
	go rt.policies.ReloadOn(ctx, sig, load, func(err error) {
		if err != nil {
			rt.log.Warn("policy reload failed, keeping current policies", zap.Error(err))
			return
		}
		rt.log.Info("policies reloaded", zap.Strings("courses", rt.policies.Current().Courses()))
	})
}

func newEmbedder(cfg config.EmbeddingConfig) embedding.Embedder {
	var base embedding.Embedder
	if cfg.Provider == "none" {
		base = embedding.NewHashEmbedder(cfg.Dimension)
	} else {
		base = embedding.NewOllamaEmbedder(cfg.OllamaURL, cfg.OllamaModel, cfg.Dimension)
	}
	return embedding.NewCachedEmbedder(base, embedding.DefaultCacheTTL)
}

// Close releases every opened backend.
func (rt *runtime) Close() {
	if rt.stopReload != nil {
		rt.stopReload()
	}
	if rt.cache != nil {
		rt.cache.Close()
	}
	if rt.db != nil {
		rt.db.Close()
	}
	if rt.store != nil {
		rt.store.Close()
	}
	_ = rt.log.Sync()
}

func (rt *runtime) retriever() *content.Retriever {
	return content.NewRetriever(rt.contents, rt.embedder, rt.log, content.RetrieverConfig{
		MaxChars:   rt.cfg.Retrieval.MaxChars,
		WindowSize: rt.cfg.Retrieval.WindowSize,
	})
}

// contextSource is the retriever, behind Redis when configured.
func (rt *runtime) contextSource() content.ContextSource {
	r := rt.retriever()
	if rt.cache == nil {
		return r
	}
	return content.NewCachedRetriever(r, rt.cache, rt.cfg.Cache.RetrievalTTL, rt.log)
}

func (rt *runtime) recorder() (metrics.Recorder, *metrics.Aggregator) {
	agg := metrics.NewAggregator()
	recorders := []metrics.Recorder{agg, metrics.NewSQLiteSink(rt.store.EventRepo(), rt.log)}
	if rt.pgMetrics != nil {
		recorders = append(recorders, rt.pgMetrics)
	}
	return metrics.Multi(recorders...), agg
}

// orchestrator wires the full generation pipeline.
func (rt *runtime) orchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	provider, err := llm.NewProviderFromEnv(ctx, rt.store.EventRepo(), rt.log)
	if err != nil {
		return nil, fmt.Errorf("LLM provider: %w", err)
	}
	rec, _ := rt.recorder()

	return orchestrator.New(orchestrator.Deps{
		Policies:  rt.policies,
		Retriever: rt.contextSource(),
		Generator: questiongen.New(provider, questiongen.DefaultConfig(), rt.log),
		Validator: validation.NewLayer(validation.NewLLMRelevanceChecker(provider, rt.log)),
		Sink:      orchestrator.NewRepoSink(rt.questions),
		Metrics:   rec,
		Hierarchy: orchestrator.PolicyTopics{Policies: rt.policies},
		Dedup:     orchestrator.NewDeduplicator(rt.embedder, rt.questions, rt.log),
		Log:       rt.log,
	}, orchestrator.Options{SerializeTopics: rt.cfg.SerializeTopics})
}

// withRuntime runs fn with an open runtime and closes it afterwards.
func withRuntime(cmd *cobra.Command, fn func(rt *runtime) error) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}
