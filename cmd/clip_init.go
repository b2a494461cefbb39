package main

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jobclip/jobclip-cli/internal/extract"
	"github.com/jobclip/jobclip-cli/internal/fetch"
	"github.com/jobclip/jobclip-cli/internal/normalize"
	"github.com/jobclip/jobclip-cli/internal/pipeline"
	"github.com/jobclip/jobclip-cli/internal/resilience"
	"github.com/jobclip/jobclip-cli/internal/schemacache"
	"github.com/jobclip/jobclip-cli/internal/sink"
	"github.com/jobclip/jobclip-cli/internal/upsert"
	"github.com/jobclip/jobclip-cli/pkg/feishu"
	"github.com/jobclip/jobclip-cli/pkg/jina"
	"github.com/jobclip/jobclip-cli/pkg/llm"
	"github.com/jobclip/jobclip-cli/pkg/notion"
)

// clipEnv holds the initialized sinks and pipeline shared by the clip, batch
// and serve commands.
type clipEnv struct {
	Pipeline *pipeline.Pipeline
	Stores   []sink.Store
	Cache    *schemacache.Cache

	closers []io.Closer
}

// Close releases resources held by the environment.
func (e *clipEnv) Close() {
	for _, c := range e.closers {
		_ = c.Close()
	}
}

// initSinks builds every configured record store. Order matters: the first
// store is the primary whose schema drives extraction. Notion wins when both
// remotes are configured.
func initSinks(ctx context.Context) ([]sink.Store, []io.Closer, error) {
	var stores []sink.Store
	var closers []io.Closer

	if cfg.Notion.Token != "" && cfg.Notion.DatabaseID != "" {
		client := notion.NewClient(cfg.Notion.Token)
		stores = append(stores, sink.NewNotionStore(client, cfg.Notion.DatabaseID, cfg.Notion.URLProperty))
		zap.L().Info("notion sink enabled", zap.String("database", cfg.Notion.DatabaseID))
	}

	if cfg.Feishu.AppID != "" && cfg.Feishu.AppSecret != "" && cfg.Feishu.AppToken != "" && cfg.Feishu.TableID != "" {
		client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, cfg.Feishu.AppToken, cfg.Feishu.TableID,
			feishu.WithBaseURL(cfg.Feishu.BaseURL))
		stores = append(stores, sink.NewFeishuStore(client, cfg.Feishu.URLField))
		zap.L().Info("feishu sink enabled", zap.String("table", cfg.Feishu.TableID))
	}

	if cfg.Archive.DSN != "" {
		switch cfg.Archive.Driver {
		case "postgres":
			archive, err := sink.NewPostgresArchive(ctx, cfg.Archive.DSN)
			if err != nil {
				closeAll(closers)
				return nil, nil, eris.Wrap(err, "init postgres archive")
			}
			if err := archive.Migrate(ctx); err != nil {
				_ = archive.Close()
				closeAll(closers)
				return nil, nil, eris.Wrap(err, "migrate postgres archive")
			}
			stores = append(stores, archive)
			closers = append(closers, archive)
		case "sqlite":
			archive, err := sink.NewSQLiteArchive(cfg.Archive.DSN)
			if err != nil {
				closeAll(closers)
				return nil, nil, eris.Wrap(err, "init sqlite archive")
			}
			if err := archive.Migrate(ctx); err != nil {
				_ = archive.Close()
				closeAll(closers)
				return nil, nil, eris.Wrap(err, "migrate sqlite archive")
			}
			stores = append(stores, archive)
			closers = append(closers, archive)
		default:
			closeAll(closers)
			return nil, nil, eris.Errorf("unknown archive driver %q", cfg.Archive.Driver)
		}
		zap.L().Info("archive sink enabled", zap.String("driver", cfg.Archive.Driver))
	}

	if len(stores) == 0 {
		return nil, nil, eris.New("no sinks configured: set notion, feishu or archive credentials")
	}
	return stores, closers, nil
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}

// initProvider selects the language model backend.
func initProvider() (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		return llm.NewAnthropic(cfg.LLM.Key, cfg.LLM.Model), nil
	case "openai":
		return llm.NewOpenAI(cfg.LLM.Key, cfg.LLM.Model, cfg.LLM.BaseURL), nil
	default:
		return nil, eris.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// initFetcher builds the content acquisition chain: reader API primary,
// plain HTTP fallback. Without a reader key only the fallback runs.
func initFetcher() fetch.Fetcher {
	var fetchers []fetch.Fetcher
	if cfg.Fetch.ReaderKey != "" {
		jinaClient := jina.NewClient(cfg.Fetch.ReaderKey, jina.WithBaseURL(cfg.Fetch.ReaderBaseURL))
		fetchers = append(fetchers, fetch.NewReaderFetcher(jinaClient))
	}
	fetchers = append(fetchers, fetch.NewLocalFetcher(cfg.Fetch.UserAgent))
	return fetch.NewChain(fetchers...)
}

// initClipper wires sinks, schema cache, extractor and pipeline. Callers
// should defer env.Close().
func initClipper(ctx context.Context) (*clipEnv, error) {
	if err := cfg.Validate("clip"); err != nil {
		return nil, err
	}

	stores, closers, err := initSinks(ctx)
	if err != nil {
		return nil, err
	}

	provider, err := initProvider()
	if err != nil {
		closeAll(closers)
		return nil, err
	}

	sources := make([]schemacache.Source, len(stores))
	for i, s := range stores {
		sources[i] = s
	}
	cache := schemacache.New(sources, time.Duration(cfg.Schema.CacheTTLMins)*time.Minute)

	extractor := extract.New(provider,
		extract.WithMaxTokens(cfg.LLM.MaxTokens),
		extract.WithRepairRetries(cfg.Pipeline.RepairRetries),
	)
	coordinator := upsert.New(resilience.DefaultRetryConfig())

	p := pipeline.New(initFetcher(), cache, extractor, coordinator, stores,
		pipeline.WithMaxConcurrent(cfg.Pipeline.MaxConcurrent),
		pipeline.WithNormalizeOptions(normalize.Options{
			FuzzyThreshold: cfg.Normalize.FuzzyThreshold,
			StrictOptions:  cfg.Normalize.StrictOptions,
			MaxTextLen:     cfg.Normalize.MaxTextLen,
		}),
	)

	return &clipEnv{
		Pipeline: p,
		Stores:   stores,
		Cache:    cache,
		closers:  closers,
	}, nil
}
