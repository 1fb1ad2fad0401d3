package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
	"github.com/cairn-works/cairn/internal/core/ports/driving"
	"github.com/cairn-works/cairn/internal/logger"
	"github.com/cairn-works/cairn/internal/retry"
	"github.com/cairn-works/cairn/internal/splitter"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// defaultSummaryPrompt is used when no prompt store is injected.
const defaultSummaryPrompt = "Summarise the following document in at most two sentences. " +
	"Reply with the summary only.\n\n%s"

// summaryInputCap bounds how much document text a summary request sends.
const summaryInputCap = 8000

// IngestService keeps collections synchronized with their sources:
// list, hash-compare, chunk, embed, replace, tombstone.
type IngestService struct {
	ledger   driven.IngestionLedger
	vectors  driven.VectorStore
	embedder driven.EmbeddingService
	split    *splitter.Splitter
	locks    *CollectionLocks
	cfg      domain.IngestSettings
	retryCfg retry.Config

	// Optional collaborators for document summaries.
	completion driven.CompletionService
	prompts    driven.PromptStore

	mu          sync.RWMutex
	adapters    map[string]driven.SourceAdapter
	collections map[string]domain.CollectionConfig
}

// NewIngestService creates a new ingestion service. Source adapters and
// collection configurations are registered separately.
func NewIngestService(
	ledger driven.IngestionLedger,
	vectors driven.VectorStore,
	embedder driven.EmbeddingService,
	split *splitter.Splitter,
	locks *CollectionLocks,
	cfg domain.IngestSettings,
	retryCfg retry.Config,
) *IngestService {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 100
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}

	return &IngestService{
		ledger:      ledger,
		vectors:     vectors,
		embedder:    embedder,
		split:       split,
		locks:       locks,
		cfg:         cfg,
		retryCfg:    retryCfg,
		adapters:    make(map[string]driven.SourceAdapter),
		collections: make(map[string]domain.CollectionConfig),
	}
}

// RegisterAdapter binds a source adapter to a collection.
func (s *IngestService) RegisterAdapter(collection string, adapter driven.SourceAdapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[collection] = adapter
}

// RegisterCollection stores a collection's source configuration for
// TriggerIngest.
func (s *IngestService) RegisterCollection(cfg domain.CollectionConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[cfg.Name] = cfg
}

// SetCompletionService enables document summaries.
func (s *IngestService) SetCompletionService(completion driven.CompletionService) {
	s.completion = completion
}

// SetPromptStore sets the prompt store for the summary template.
func (s *IngestService) SetPromptStore(store driven.PromptStore) {
	s.prompts = store
}

// TriggerIngest runs Sync with the collection's registered source
// configuration.
func (s *IngestService) TriggerIngest(ctx context.Context, collection string) (*domain.IngestionReport, error) {
	s.mu.RLock()
	cfg, ok := s.collections[collection]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: collection %q not configured", domain.ErrNotFound, collection)
	}
	return s.Sync(ctx, collection, cfg.Source)
}

// Syncing reports whether an ingestion run currently holds the
// collection's lock.
func (s *IngestService) Syncing(collection string) bool {
	return s.locks.Held(collection)
}

// Sync runs one ingestion pass over the collection. On cancellation the
// partial report is returned together with the context error; documents
// already mid-replace finish on a detached context and the tombstone
// pass is skipped.
func (s *IngestService) Sync(ctx context.Context, collection string, cfg domain.SourceConfig) (*domain.IngestionReport, error) {
	s.mu.RLock()
	adapter, ok := s.adapters[collection]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrNoAdapter, collection)
	}

	include, exclude, err := compileFilters(cfg)
	if err != nil {
		return nil, err
	}

	if !s.locks.TryLock(collection) {
		return nil, fmt.Errorf("%w: %q", domain.ErrSyncInProgress, collection)
	}
	defer s.locks.Unlock(collection)

	report := &domain.IngestionReport{
		Collection: collection,
		Started:    time.Now(),
	}
	defer func() { report.Duration = time.Since(report.Started) }()

	logger.Info("ingestion run started",
		zap.String("collection", collection),
		zap.String("root", cfg.Root),
	)

	descriptors, err := retry.DoWithResult(ctx, s.retryCfg, "list "+collection,
		func() ([]domain.DocumentDescriptor, error) {
			callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
			defer cancel()
			return adapter.List(callCtx, driven.ListRequest{
				Path:      cfg.Root,
				Recursive: cfg.Recursive,
				Include:   cfg.Include,
				Exclude:   cfg.Exclude,
			})
		})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", collection, err)
	}

	// Adapters may push filters down; re-apply them regardless.
	candidates := make([]domain.DocumentDescriptor, 0, len(descriptors))
	seen := make(map[string]bool, len(descriptors))
	for _, desc := range descriptors {
		if include != nil && !include.MatchString(desc.Path) {
			continue
		}
		if exclude != nil && exclude.MatchString(desc.Path) {
			continue
		}
		candidates = append(candidates, desc)
		seen[desc.Path] = true
	}

	s.processCandidates(ctx, collection, adapter, cfg, candidates, report)

	if ctx.Err() != nil {
		// The seen-set is incomplete; deleting from it would tombstone
		// documents that still exist.
		logger.Warn("ingestion run cancelled, skipping tombstone pass",
			zap.String("collection", collection),
			zap.Int("ingested", report.Ingested),
			zap.Int("failed", report.Failed),
		)
		return report, ctx.Err()
	}

	if err := s.tombstonePass(collection, seen, report); err != nil {
		return report, err
	}

	logger.Info("ingestion run finished",
		zap.String("collection", collection),
		zap.Int("ingested", report.Ingested),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", time.Since(report.Started)),
	)
	return report, nil
}

// processCandidates runs the bounded worker pool over the listed
// documents. Cancellation stops dispatching; started documents finish.
func (s *IngestService) processCandidates(
	ctx context.Context,
	collection string,
	adapter driven.SourceAdapter,
	cfg domain.SourceConfig,
	candidates []domain.DocumentDescriptor,
	report *domain.IngestionReport,
) {
	sem := make(chan struct{}, s.cfg.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, desc := range candidates {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(desc domain.DocumentDescriptor) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := s.processDocument(ctx, collection, adapter, cfg, desc)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				report.Failures = append(report.Failures, domain.DocumentFailure{
					Path:      desc.Path,
					Reason:    err.Error(),
					Transient: domain.IsTransient(err),
				})
			case outcome == outcomeIngested:
				report.Ingested++
			default:
				report.Unchanged++
			}
		}(desc)
	}

	wg.Wait()
}

type documentOutcome int

const (
	outcomeUnchanged documentOutcome = iota
	outcomeIngested
)

// processDocument takes one document through fetch, hash comparison and
// the insert-before-delete replace sequence. The write phase runs on a
// context detached from cancellation so a started replacement always
// completes or fails whole.
func (s *IngestService) processDocument(
	ctx context.Context,
	collection string,
	adapter driven.SourceAdapter,
	cfg domain.SourceConfig,
	desc domain.DocumentDescriptor,
) (documentOutcome, error) {
	content, err := retry.DoWithResult(ctx, s.retryCfg, "fetch "+desc.Path,
		func() ([]byte, error) {
			callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
			defer cancel()
			return adapter.Fetch(callCtx, desc)
		})
	if err != nil {
		s.recordFailure(collection, desc.Path, err)
		return 0, fmt.Errorf("fetching: %w", err)
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	prior, err := s.ledger.Get(ctx, collection, desc.Path)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("reading ledger: %w", err)
	}

	if prior != nil && prior.ContentHash == hash {
		logger.Debug("document unchanged",
			zap.String("collection", collection),
			zap.String("path", desc.Path),
		)
		return outcomeUnchanged, nil
	}

	version := 1
	if prior != nil {
		version = prior.Version + 1
	}

	chunks := s.split.Split(splitter.Document{
		Collection: collection,
		Path:       desc.Path,
		Version:    version,
	}, string(content))

	if err := s.embedChunks(ctx, desc.Path, chunks); err != nil {
		s.recordFailure(collection, desc.Path, err)
		return 0, err
	}

	title := ""
	if len(chunks) > 0 {
		title = chunks[0].Title
	}

	summary := ""
	if cfg.GenerateSummaries {
		summary = s.summarize(ctx, desc.Path, string(content))
	}

	// Write phase: runs to completion even when ctx is cancelled, so a
	// document is always fully old or fully new.
	wctx := context.WithoutCancel(ctx)

	if err := s.upsertChunks(wctx, collection, desc.Path, chunks); err != nil {
		s.recordFailure(collection, desc.Path, err)
		return 0, err
	}

	if prior != nil {
		if err := s.deleteVersion(wctx, collection, desc.Path, prior.Version); err != nil {
			// Roll the new version back so the store matches the ledger.
			if rbErr := s.deleteVersion(wctx, collection, desc.Path, version); rbErr != nil {
				logger.Error("rollback of new version failed",
					zap.String("collection", collection),
					zap.String("path", desc.Path),
					zap.Int("version", version),
					zap.Error(rbErr),
				)
			}
			s.recordFailure(collection, desc.Path, err)
			return 0, err
		}
	}

	rec := domain.IngestionRecord{
		Collection:  collection,
		Path:        desc.Path,
		ContentHash: hash,
		Version:     version,
		Title:       title,
		Summary:     summary,
		LastSuccess: time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.ledger.Put(wctx, rec); err != nil {
		return 0, fmt.Errorf("updating ledger: %w", err)
	}

	logger.Debug("document ingested",
		zap.String("collection", collection),
		zap.String("path", desc.Path),
		zap.Int("version", version),
		zap.Int("chunks", len(chunks)),
	)
	return outcomeIngested, nil
}

// embedChunks fills in embeddings batch by batch, preserving order.
func (s *IngestService) embedChunks(ctx context.Context, path string, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += s.cfg.EmbedBatchSize {
		end := start + s.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = chunks[i].Text
		}

		vectors, err := retry.DoWithResult(ctx, s.retryCfg, "embed "+path,
			func() ([][]float32, error) {
				callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
				defer cancel()
				return s.embedder.EmbedBatch(callCtx, texts)
			})
		if err != nil {
			return fmt.Errorf("embedding: %w", err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("%w: embedding batch returned %d vectors for %d texts",
				domain.ErrEmbeddingService, len(vectors), len(texts))
		}

		for i := range vectors {
			chunks[start+i].Embedding = vectors[i]
		}
	}
	return nil
}

func (s *IngestService) upsertChunks(ctx context.Context, collection, path string, chunks []domain.Chunk) error {
	err := retry.Do(ctx, s.retryCfg, "upsert "+path, func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		return s.vectors.Upsert(callCtx, collection, chunks)
	})
	if err != nil {
		return fmt.Errorf("writing chunks: %w", err)
	}
	return nil
}

func (s *IngestService) deleteVersion(ctx context.Context, collection, path string, version int) error {
	err := retry.Do(ctx, s.retryCfg, "delete "+path, func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		return s.vectors.DeleteVersion(callCtx, collection, path, version)
	})
	if err != nil {
		return fmt.Errorf("deleting version %d: %w", version, err)
	}
	return nil
}

// summarize asks the completion service for a short document summary.
// Failures degrade to an empty summary, never to a failed document.
func (s *IngestService) summarize(ctx context.Context, path, content string) string {
	if s.completion == nil {
		return ""
	}

	if len(content) > summaryInputCap {
		content = content[:summaryInputCap]
	}

	template := defaultSummaryPrompt
	if s.prompts != nil {
		if loaded, err := s.prompts.Load(driven.PromptDocumentSummary); err == nil {
			template = loaded
		}
	}

	summary, err := retry.DoWithResult(ctx, s.retryCfg, "summarize "+path,
		func() (string, error) {
			callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
			defer cancel()
			return s.completion.Complete(callCtx, fmt.Sprintf(template, content))
		})
	if err != nil {
		logger.Warn("document summary failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return ""
	}
	return summary
}

// recordFailure notes the failure on an existing ledger record. A
// document that never ingested successfully leaves no record.
func (s *IngestService) recordFailure(collection, path string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	defer cancel()

	rec, err := s.ledger.Get(ctx, collection, path)
	if err != nil {
		return
	}

	rec.LastError = cause.Error()
	rec.UpdatedAt = time.Now()
	if err := s.ledger.Put(ctx, *rec); err != nil {
		logger.Warn("recording failure on ledger failed",
			zap.String("collection", collection),
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

// tombstonePass removes documents the source no longer lists: all their
// chunk versions and their ledger record.
func (s *IngestService) tombstonePass(collection string, seen map[string]bool, report *domain.IngestionReport) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	defer cancel()

	paths, err := s.ledger.ListPaths(ctx, collection)
	if err != nil {
		return fmt.Errorf("listing ledger paths: %w", err)
	}

	for _, path := range paths {
		if seen[path] {
			continue
		}

		if err := s.vectors.DeleteDocument(ctx, collection, path); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, domain.DocumentFailure{
				Path:      path,
				Reason:    fmt.Sprintf("tombstone: %v", err),
				Transient: domain.IsTransient(err),
			})
			continue
		}
		if err := s.ledger.Delete(ctx, collection, path); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, domain.DocumentFailure{
				Path:      path,
				Reason:    fmt.Sprintf("tombstone ledger: %v", err),
				Transient: domain.IsTransient(err),
			})
			continue
		}

		report.Deleted++
		logger.Debug("document tombstoned",
			zap.String("collection", collection),
			zap.String("path", path),
		)
	}
	return nil
}

func compileFilters(cfg domain.SourceConfig) (include, exclude *regexp.Regexp, err error) {
	if cfg.Include != "" {
		include, err = regexp.Compile(cfg.Include)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: include pattern: %v", domain.ErrInvalidInput, err)
		}
	}
	if cfg.Exclude != "" {
		exclude, err = regexp.Compile(cfg.Exclude)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: exclude pattern: %v", domain.ErrInvalidInput, err)
		}
	}
	return include, exclude, nil
}
