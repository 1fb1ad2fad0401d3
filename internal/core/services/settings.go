package services

import (
	"fmt"
	"time"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyChunkSize         = "chunking.size"
	keyChunkOverlap      = "chunking.overlap"
	keyTopK              = "retrieval.top_k"
	keyMinScore          = "retrieval.min_score"
	keyTokenBudget       = "retrieval.token_budget"
	keyFallbackText      = "retrieval.fallback_text"
	keyRouterThreshold   = "router.confidence_threshold"
	keyRouterTieEpsilon  = "router.tie_epsilon"
	keyRouterFanOut      = "router.fan_out"
	keyRouterFallback    = "router.fallback_to_general"
	keyFollowUpWindow    = "follow_up.window"
	keyFollowUpRoundCap  = "follow_up.round_cap"
	keyFollowUpAutoPost  = "follow_up.auto_post"
	keyFollowUpQuery     = "follow_up.chase_query"
	keyIngestWorkers     = "ingest.workers"
	keyIngestBatchSize   = "ingest.embed_batch_size"
	keyIngestEmbedRate   = "ingest.embed_rate_per_sec"
	keyIngestCallTimeout = "ingest.call_timeout"
	keyRetryMaxAttempts  = "retry.max_attempts"
	keyRetryInitialDelay = "retry.initial_delay"
	keyRetryMaxDelay     = "retry.max_delay"
	keyRetryMultiplier   = "retry.multiplier"
	keyRetryJitter       = "retry.jitter_fraction"
	keySchedEnabled      = "scheduler.enabled"
	keySchedSync         = "scheduler.sync_interval"
	keySchedChase        = "scheduler.chase_interval"
	keyEmbedBaseURL      = "embedding.base_url"
	keyEmbedAPIKey       = "embedding.api_key"
	keyEmbedModel        = "embedding.model"
	keyComplBaseURL      = "completion.base_url"
	keyComplAPIKey       = "completion.api_key"
	keyComplModel        = "completion.model"
	keyVectorStorePath   = "vector_store.path"
	keyCollections       = "collections"
)

// SettingsService assembles typed application settings from the
// configuration store, filling gaps with defaults.
type SettingsService struct {
	config driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(config driven.ConfigStore) *SettingsService {
	return &SettingsService{config: config}
}

// Load returns the validated application settings.
func (s *SettingsService) Load() (domain.Settings, error) {
	d := domain.DefaultSettings()

	settings := domain.Settings{
		Collections: s.collections(),
		Chunking: domain.ChunkingSettings{
			Size:    s.getInt(keyChunkSize, d.Chunking.Size),
			Overlap: s.getInt(keyChunkOverlap, d.Chunking.Overlap),
		},
		Retrieval: domain.RetrievalSettings{
			TopK:         s.getInt(keyTopK, d.Retrieval.TopK),
			MinScore:     s.getFloat(keyMinScore, d.Retrieval.MinScore),
			TokenBudget:  s.getInt(keyTokenBudget, d.Retrieval.TokenBudget),
			FallbackText: s.getString(keyFallbackText, d.Retrieval.FallbackText),
		},
		Router: domain.RouterSettings{
			ConfidenceThreshold: s.getFloat(keyRouterThreshold, d.Router.ConfidenceThreshold),
			TieEpsilon:          s.getFloat(keyRouterTieEpsilon, d.Router.TieEpsilon),
			FanOut:              s.getBool(keyRouterFanOut, d.Router.FanOut),
			FallbackToGeneral:   s.getBool(keyRouterFallback, d.Router.FallbackToGeneral),
		},
		FollowUp: domain.FollowUpSettings{
			Window:     s.getDuration(keyFollowUpWindow, d.FollowUp.Window),
			RoundCap:   s.getInt(keyFollowUpRoundCap, d.FollowUp.RoundCap),
			AutoPost:   s.getBool(keyFollowUpAutoPost, d.FollowUp.AutoPost),
			ChaseQuery: s.getString(keyFollowUpQuery, d.FollowUp.ChaseQuery),
		},
		Ingest: domain.IngestSettings{
			Workers:         s.getInt(keyIngestWorkers, d.Ingest.Workers),
			EmbedBatchSize:  s.getInt(keyIngestBatchSize, d.Ingest.EmbedBatchSize),
			EmbedRatePerSec: s.getFloat(keyIngestEmbedRate, d.Ingest.EmbedRatePerSec),
			CallTimeout:     s.getDuration(keyIngestCallTimeout, d.Ingest.CallTimeout),
		},
		Retry: domain.RetrySettings{
			MaxAttempts:    s.getInt(keyRetryMaxAttempts, d.Retry.MaxAttempts),
			InitialDelay:   s.getDuration(keyRetryInitialDelay, d.Retry.InitialDelay),
			MaxDelay:       s.getDuration(keyRetryMaxDelay, d.Retry.MaxDelay),
			Multiplier:     s.getFloat(keyRetryMultiplier, d.Retry.Multiplier),
			JitterFraction: s.getFloat(keyRetryJitter, d.Retry.JitterFraction),
		},
		Scheduler: domain.SchedulerSettings{
			Enabled:       s.getBool(keySchedEnabled, d.Scheduler.Enabled),
			SyncInterval:  s.getDuration(keySchedSync, d.Scheduler.SyncInterval),
			ChaseInterval: s.getDuration(keySchedChase, d.Scheduler.ChaseInterval),
		},
		Embedding: domain.ServiceSettings{
			BaseURL: s.config.GetString(keyEmbedBaseURL),
			APIKey:  s.config.GetString(keyEmbedAPIKey),
			Model:   s.getString(keyEmbedModel, d.Embedding.Model),
		},
		Completion: domain.ServiceSettings{
			BaseURL: s.config.GetString(keyComplBaseURL),
			APIKey:  s.config.GetString(keyComplAPIKey),
			Model:   s.getString(keyComplModel, d.Completion.Model),
		},
		VectorStorePath: s.config.GetString(keyVectorStorePath),
	}

	if err := settings.Validate(); err != nil {
		return domain.Settings{}, fmt.Errorf("loading settings from %s: %w", s.config.Path(), err)
	}
	return settings, nil
}

// Collection returns the configuration for one named collection.
func (s *SettingsService) Collection(name string) (domain.CollectionConfig, error) {
	for _, c := range s.collections() {
		if c.Name == name {
			return c, nil
		}
	}
	return domain.CollectionConfig{}, fmt.Errorf("%w: collection %q not configured", domain.ErrNotFound, name)
}

// collections reads the [[collections]] tables.
func (s *SettingsService) collections() []domain.CollectionConfig {
	tables := s.config.Tables(keyCollections)
	if len(tables) == 0 {
		return nil
	}

	out := make([]domain.CollectionConfig, 0, len(tables))
	for _, table := range tables {
		out = append(out, domain.CollectionConfig{
			Name:    tableString(table, "name"),
			Adapter: tableString(table, "adapter"),
			Source: domain.SourceConfig{
				Root:              tableString(table, "root"),
				Recursive:         tableBool(table, "recursive"),
				Include:           tableString(table, "include"),
				Exclude:           tableString(table, "exclude"),
				GenerateSummaries: tableBool(table, "generate_summaries"),
			},
		})
	}
	return out
}

func (s *SettingsService) getString(key, def string) string {
	if v, ok := s.config.Get(key); ok {
		if str, isStr := v.(string); isStr {
			return str
		}
	}
	return def
}

func (s *SettingsService) getInt(key string, def int) int {
	if _, ok := s.config.Get(key); ok {
		return s.config.GetInt(key)
	}
	return def
}

func (s *SettingsService) getFloat(key string, def float64) float64 {
	if _, ok := s.config.Get(key); ok {
		return s.config.GetFloat(key)
	}
	return def
}

func (s *SettingsService) getBool(key string, def bool) bool {
	if v, ok := s.config.Get(key); ok {
		if b, isBool := v.(bool); isBool {
			return b
		}
	}
	return def
}

// getDuration reads a duration stored as a string like "72h" or "30s".
// Unparseable values fall back to the default.
func (s *SettingsService) getDuration(key string, def time.Duration) time.Duration {
	raw := s.config.GetString(key)
	if raw == "" {
		return def
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return parsed
}

func tableString(table map[string]any, key string) string {
	if v, ok := table[key].(string); ok {
		return v
	}
	return ""
}

func tableBool(table map[string]any, key string) bool {
	if v, ok := table[key].(bool); ok {
		return v
	}
	return false
}
