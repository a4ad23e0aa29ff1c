package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PaliC/popcorn-data-utils/internal/dedup/lsh"
	"github.com/PaliC/popcorn-data-utils/internal/dedup/minhash"
	"github.com/PaliC/popcorn-data-utils/internal/dedup/shingle"
)

// Stage names, in execution order.
const (
	StageExact     = "exact"
	StageSignature = "signature"
	StageIndex     = "index"
	StageGraph     = "graph"
	StageResolve   = "resolve"
)

// Stats summarises one run.
type Stats struct {
	Total        int
	ExactDropped int
	NearDropped  int
	Kept         int
	Histogram    map[int]int
	Stages       []StageTiming
}

// StageTiming records how long one stage took.
type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// Result is the outcome of a run: the surviving documents, sorted by ID,
// plus run statistics.
type Result struct {
	Kept  []Document
	Stats Stats
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver wires a progress sink into every stage.
func WithObserver(obs Observer) Option {
	return func(p *Pipeline) {
		if obs != nil {
			p.observer = obs
		}
	}
}

// WithLogger overrides the pipeline's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Pipeline runs the two-stage deduplication over a batch of documents.
// A Pipeline is reusable across batches; each Run builds and discards its
// own index and graph.
type Pipeline struct {
	params   Params
	hasher   *minhash.Hasher
	observer Observer
	logger   *slog.Logger
}

// New validates params and builds a Pipeline with its hash family fixed up
// front, so every Run produces comparable signatures.
func New(params Params, opts ...Option) (*Pipeline, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	hasher, err := minhash.NewHasher(params.NumHashes())
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		params:   params,
		hasher:   hasher,
		observer: NopObserver{},
		logger:   slog.Default().With("component", "dedup-pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Params returns the parameter set the pipeline was built with.
func (p *Pipeline) Params() Params {
	return p.params
}

// Deduplicate runs the full pipeline with the given params and returns the
// kept documents. It is the one-call entry point; use New plus Run when
// stats, progress, or pipeline reuse matter.
func Deduplicate(ctx context.Context, docs []Document, params Params) ([]Document, error) {
	p, err := New(params)
	if err != nil {
		return nil, err
	}
	result, err := p.Run(ctx, docs)
	if err != nil {
		return nil, err
	}
	return result.Kept, nil
}

// Run executes exact collapse, signing, indexing, candidate retrieval, and
// resolution over the batch. The whole batch must be valid: the first
// document with an empty ID, empty text, or a duplicated ID fails the run
// (screen with Screen first to drop bad documents instead). Cancellation is
// honoured between stages, never mid-stage; a partially built index has no
// meaningful result to salvage.
func (p *Pipeline) Run(ctx context.Context, docs []Document) (*Result, error) {
	if err := validateBatch(docs); err != nil {
		return nil, err
	}

	stats := Stats{Total: len(docs)}
	start := time.Now()

	if err := p.beginStage(ctx, StageExact, len(docs)); err != nil {
		return nil, err
	}
	stageStart := time.Now()
	survivors := CollapseExact(docs)
	p.endStage(&stats, StageExact, stageStart)
	stats.ExactDropped = len(docs) - len(survivors)

	sigs, err := p.signAll(ctx, &stats, survivors)
	if err != nil {
		return nil, err
	}

	ix, err := p.indexAll(ctx, &stats, survivors, sigs)
	if err != nil {
		return nil, err
	}

	graph, err := p.graphAll(ctx, &stats, survivors, sigs, ix)
	if err != nil {
		return nil, err
	}
	stats.Histogram = CandidateHistogram(graph)

	if err := p.beginStage(ctx, StageResolve, len(survivors)); err != nil {
		return nil, err
	}
	stageStart = time.Now()
	byID := make(map[string]Document, len(survivors))
	for _, doc := range survivors {
		byID[doc.ID] = doc
	}
	keptIDs := resolve(graph, byID)
	p.endStage(&stats, StageResolve, stageStart)
	stats.NearDropped = len(survivors) - len(keptIDs)

	kept := make([]Document, 0, len(keptIDs))
	for id := range keptIDs {
		kept = append(kept, byID[id])
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })
	stats.Kept = len(kept)

	p.logger.Info("run complete",
		"total", stats.Total,
		"exact_dropped", stats.ExactDropped,
		"near_dropped", stats.NearDropped,
		"kept", stats.Kept,
		"took", time.Since(start),
	)
	return &Result{Kept: kept, Stats: stats}, nil
}

// signAll shingles and signs every document in parallel. Documents shorter
// than the n-gram size get a nil signature: they are kept through the run
// but never indexed, so the empty-set sentinel can never match anything.
func (p *Pipeline) signAll(ctx context.Context, stats *Stats, docs []Document) ([][]uint64, error) {
	if err := p.beginStage(ctx, StageSignature, len(docs)); err != nil {
		return nil, err
	}
	stageStart := time.Now()
	sigs := make([][]uint64, len(docs))
	var completed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(p.params.workerCount())
	for i := range docs {
		g.Go(func() error {
			shingles := shingle.Set(docs[i].Text, p.params.NgramSize)
			if len(shingles) > 0 {
				sigs[i] = p.hasher.Signature(shingles)
			}
			p.observer.StageProgress(StageSignature, int(completed.Add(1)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	p.endStage(stats, StageSignature, stageStart)
	return sigs, nil
}

// indexAll populates a fresh band index with every signed document.
// Inserts fan out across workers; bucket contents are order-independent.
func (p *Pipeline) indexAll(ctx context.Context, stats *Stats, docs []Document, sigs [][]uint64) (*lsh.Index, error) {
	ix, err := lsh.New(p.params.Bands, p.params.RowsPerBand)
	if err != nil {
		return nil, err
	}
	if err := p.beginStage(ctx, StageIndex, len(docs)); err != nil {
		return nil, err
	}
	stageStart := time.Now()
	var completed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(p.params.workerCount())
	for i := range docs {
		if sigs[i] == nil {
			continue
		}
		g.Go(func() error {
			if err := ix.Insert(docs[i].ID, sigs[i]); err != nil {
				return fmt.Errorf("indexing %s: %w", docs[i].ID, err)
			}
			p.observer.StageProgress(StageIndex, int(completed.Add(1)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	p.endStage(stats, StageIndex, stageStart)
	return ix, nil
}

// graphAll retrieves candidates for every signed document once all inserts
// have completed.
func (p *Pipeline) graphAll(ctx context.Context, stats *Stats, docs []Document, sigs [][]uint64, ix *lsh.Index) (Graph, error) {
	if err := p.beginStage(ctx, StageGraph, len(docs)); err != nil {
		return nil, err
	}
	stageStart := time.Now()
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	graph, err := buildGraph(ix, ids, sigs, p.params.workerCount(), func(completed int) {
		p.observer.StageProgress(StageGraph, completed)
	})
	if err != nil {
		return nil, err
	}
	p.endStage(stats, StageGraph, stageStart)
	return graph, nil
}

// beginStage enforces batch-granularity cancellation: a run aborts before
// a stage starts, never in the middle of one.
func (p *Pipeline) beginStage(ctx context.Context, stage string, total int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("aborted before %s stage: %w", stage, err)
	}
	p.observer.StageStarted(stage, total)
	return nil
}

func (p *Pipeline) endStage(stats *Stats, stage string, start time.Time) {
	took := time.Since(start)
	p.observer.StageFinished(stage, took)
	stats.Stages = append(stats.Stages, StageTiming{Stage: stage, Duration: took})
	p.logger.Debug("stage finished", "stage", stage, "took", took)
}
