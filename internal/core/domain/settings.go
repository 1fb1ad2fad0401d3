package domain

import (
	"fmt"
	"time"
)

// CollectionConfig binds a named collection to its source and sync options.
type CollectionConfig struct {
	// Name is the collection identifier, unique across the config.
	Name string

	// Adapter is the source adapter kind serving this collection
	// (e.g. "confluence", "sharepoint"). Adapter construction happens
	// outside the core; the name keys the adapter registry.
	Adapter string

	// Source holds what and how to sync.
	Source SourceConfig
}

// ChunkingSettings holds document splitting configuration.
type ChunkingSettings struct {
	// Size is the target chunk size in characters.
	Size int

	// Overlap is the number of characters repeated between
	// consecutive chunks.
	Overlap int
}

// RetrievalSettings holds retrieval and synthesis defaults, applied to
// queries that leave the corresponding fields zero.
type RetrievalSettings struct {
	// TopK is the default candidate count per collection.
	TopK int

	// MinScore is the default similarity threshold.
	MinScore float64

	// TokenBudget is the default context window budget.
	TokenBudget int

	// FallbackText is returned when nothing scores above threshold.
	FallbackText string
}

// RouterSettings holds supervisor routing configuration.
type RouterSettings struct {
	// ConfidenceThreshold is the minimum classification confidence
	// required to dispatch without asking for clarification.
	ConfidenceThreshold float64

	// TieEpsilon treats the top two specialists as tied when their
	// relevance scores are closer than this.
	TieEpsilon float64

	// FanOut dispatches to every specialist above threshold instead of
	// only the best one.
	FanOut bool

	// FallbackToGeneral retries a failed dispatch against the general
	// specialist before giving up.
	FallbackToGeneral bool
}

// FollowUpSettings holds stale-question detection configuration.
type FollowUpSettings struct {
	// Window is how long an unanswered mention may age before it is
	// considered stale.
	Window time.Duration

	// RoundCap bounds how many tickets one chase round examines.
	RoundCap int

	// AutoPost posts reminder drafts through the tracker during chase
	// rounds. When false, candidates are only recorded.
	AutoPost bool

	// ChaseQuery is the tracker search selecting tickets to chase.
	ChaseQuery string
}

// IngestSettings holds ingestion pipeline tuning.
type IngestSettings struct {
	// Workers is the bounded worker pool size.
	Workers int

	// EmbedBatchSize caps texts per embedding call.
	EmbedBatchSize int

	// EmbedRatePerSec throttles embedding calls; workers block when
	// the limit is reached.
	EmbedRatePerSec float64

	// CallTimeout bounds each external call (fetch, embed, store).
	CallTimeout time.Duration
}

// RetrySettings holds transient-failure retry tuning.
type RetrySettings struct {
	// MaxAttempts bounds total tries including the first.
	MaxAttempts int

	// InitialDelay is the first backoff delay.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts.
	Multiplier float64

	// JitterFraction randomises each delay by ±fraction.
	JitterFraction float64
}

// SchedulerSettings holds background run intervals.
type SchedulerSettings struct {
	// Enabled is the master switch for the scheduler.
	Enabled bool

	// SyncInterval is how often each collection re-ingests.
	SyncInterval time.Duration

	// ChaseInterval is how often follow-up chase rounds run.
	ChaseInterval time.Duration
}

// ServiceSettings holds connection details for one external AI service.
type ServiceSettings struct {
	// BaseURL is the API endpoint. Empty uses the provider default.
	BaseURL string

	// APIKey authenticates against the service.
	APIKey string

	// Model is the model name to use.
	Model string
}

// Settings holds the complete application configuration.
type Settings struct {
	// Collections lists the configured collections.
	Collections []CollectionConfig

	// Chunking holds splitter configuration.
	Chunking ChunkingSettings

	// Retrieval holds retrieval defaults.
	Retrieval RetrievalSettings

	// Router holds supervisor routing configuration.
	Router RouterSettings

	// FollowUp holds stale-question detection configuration.
	FollowUp FollowUpSettings

	// Ingest holds pipeline tuning.
	Ingest IngestSettings

	// Retry holds backoff tuning.
	Retry RetrySettings

	// Scheduler holds background run intervals.
	Scheduler SchedulerSettings

	// Embedding configures the embedding service.
	Embedding ServiceSettings

	// Completion configures the chat completion service.
	Completion ServiceSettings

	// VectorStorePath is the embedded vector store's data directory.
	VectorStorePath string
}

// DefaultSettings returns settings with sensible defaults. Collections
// and service credentials must be configured explicitly.
func DefaultSettings() Settings {
	return Settings{
		Chunking: ChunkingSettings{
			Size:    1000,
			Overlap: 200,
		},
		Retrieval: RetrievalSettings{
			TopK:         10,
			MinScore:     0.5,
			TokenBudget:  3000,
			FallbackText: "I could not find anything in the indexed sources that answers this.",
		},
		Router: RouterSettings{
			ConfidenceThreshold: 0.4,
			TieEpsilon:          0.05,
			FanOut:              false,
			FallbackToGeneral:   true,
		},
		FollowUp: FollowUpSettings{
			Window:   72 * time.Hour,
			RoundCap: 100,
			AutoPost: false,
		},
		Ingest: IngestSettings{
			Workers:         4,
			EmbedBatchSize:  100,
			EmbedRatePerSec: 2,
			CallTimeout:     60 * time.Second,
		},
		Retry: RetrySettings{
			MaxAttempts:    3,
			InitialDelay:   100 * time.Millisecond,
			MaxDelay:       10 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
		},
		Scheduler: SchedulerSettings{
			Enabled:       false,
			SyncInterval:  1 * time.Hour,
			ChaseInterval: 6 * time.Hour,
		},
		Embedding: ServiceSettings{
			Model: "text-embedding-3-small",
		},
		Completion: ServiceSettings{
			Model: "gpt-4o-mini",
		},
	}
}

// Validate checks the settings for values the services cannot work with.
func (s Settings) Validate() error {
	if s.Chunking.Size <= 0 {
		return fmt.Errorf("%w: chunking size must be positive", ErrInvalidInput)
	}
	if s.Chunking.Overlap < 0 || s.Chunking.Overlap >= s.Chunking.Size {
		return fmt.Errorf("%w: chunking overlap must be in [0, size)", ErrInvalidInput)
	}
	if s.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval top-k must be positive", ErrInvalidInput)
	}
	if s.Retrieval.MinScore < 0 || s.Retrieval.MinScore > 1 {
		return fmt.Errorf("%w: retrieval min-score must be in [0, 1]", ErrInvalidInput)
	}
	if s.Retrieval.TokenBudget <= 0 {
		return fmt.Errorf("%w: retrieval token budget must be positive", ErrInvalidInput)
	}
	if s.Router.ConfidenceThreshold < 0 || s.Router.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: router confidence threshold must be in [0, 1]", ErrInvalidInput)
	}
	if s.FollowUp.Window <= 0 {
		return fmt.Errorf("%w: follow-up window must be positive", ErrInvalidInput)
	}
	if s.FollowUp.RoundCap <= 0 {
		return fmt.Errorf("%w: follow-up round cap must be positive", ErrInvalidInput)
	}
	if s.Ingest.Workers <= 0 {
		return fmt.Errorf("%w: ingest workers must be positive", ErrInvalidInput)
	}
	if s.Ingest.EmbedBatchSize <= 0 {
		return fmt.Errorf("%w: embed batch size must be positive", ErrInvalidInput)
	}
	if s.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("%w: retry max attempts must be positive", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(s.Collections))
	for _, c := range s.Collections {
		if c.Name == "" {
			return fmt.Errorf("%w: collection name must not be empty", ErrInvalidInput)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate collection %q", ErrInvalidInput, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}
