// Package ingest runs the extraction → normalization → load pipeline over
// downloaded dataset artifacts. Normalization is a pure, member-local
// transform and fans out across workers; all store writes go through a
// single loader goroutine, the store's sole write path.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Miminimi234/lawl/archive"
	"github.com/Miminimi234/lawl/normalize"
	"github.com/Miminimi234/lawl/store"
)

// Config configures a Pipeline.
type Config struct {
	// BatchSize is records per store transaction. Default: store.DefaultBatchSize.
	BatchSize int

	// Workers is the normalization parallelism. Default: 4.
	Workers int

	// Format is the provider schema tag. Default: normalize.FormatAuto.
	Format normalize.Format

	// MaxMemberSize caps single archive members (see archive.Config).
	MaxMemberSize int64

	// Logger. Default: slog.Default().
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Report tallies one ingestion run. LoadCounts reflects committed batches
// only, so the numbers stay truthful even when the run is aborted.
type Report struct {
	Archives       int
	Members        int // structured members normalized
	MembersSkipped int // unreadable or non-structured members
	ParseErrors    int // members whose content failed to parse
	store.LoadCounts
}

// Pipeline ties the extractor, normalizer, and loader together.
type Pipeline struct {
	cfg    Config
	store  *store.Store
	walker *archive.Walker
	norm   *normalize.Normalizer
}

// New creates a Pipeline writing to s.
func New(s *store.Store, cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		store:  s,
		walker: archive.New(archive.Config{MaxMemberSize: cfg.MaxMemberSize, Logger: cfg.Logger}),
		norm:   normalize.New(normalize.Config{Format: cfg.Format, Logger: cfg.Logger}),
	}
}

// Run ingests the given artifacts in order. A corrupt artifact is fatal for
// the run (re-acquisition is the fix, not fallback); a corrupt member or an
// unparseable record is counted and skipped. The returned report is valid
// even when err is non-nil.
func (p *Pipeline) Run(ctx context.Context, artifacts ...string) (*Report, error) {
	report := &Report{}
	loader := store.NewLoader(p.store, p.cfg.BatchSize)
	defer func() { report.LoadCounts = loader.Counts() }()

	for _, artifact := range artifacts {
		p.cfg.Logger.Info("ingesting artifact", "path", artifact)
		if err := p.runOne(ctx, artifact, loader, report); err != nil {
			return report, fmt.Errorf("ingest %s: %w", artifact, err)
		}
		report.Archives++
	}

	if err := loader.Flush(ctx); err != nil {
		return report, err
	}

	report.LoadCounts = loader.Counts()
	p.cfg.Logger.Info("ingestion complete",
		"archives", report.Archives,
		"members", report.Members,
		"members_skipped", report.MembersSkipped,
		"parse_errors", report.ParseErrors,
		"inserted", report.Inserted,
		"duplicates", report.DuplicateSkipped)
	return report, nil
}

func (p *Pipeline) runOne(ctx context.Context, artifact string, loader *store.Loader, report *Report) error {
	var (
		members     atomic.Int64
		nonJSON     atomic.Int64
		parseErrors atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	memberCh := make(chan archive.Member, p.cfg.Workers)
	recordCh := make(chan []normalize.Record, p.cfg.Workers)

	// Extraction: one sequential pass over the archive.
	var walkStats *archive.Stats
	g.Go(func() error {
		defer close(memberCh)
		stats, err := p.walker.Walk(artifact, func(m archive.Member) error {
			select {
			case memberCh <- m:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
		walkStats = stats
		return err
	})

	// Normalization fan-out.
	var workers sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for m := range memberCh {
				if !structured(m.Path) {
					nonJSON.Add(1)
					continue
				}
				recs, err := p.norm.Records(m.Data, m.Path)
				if err != nil {
					parseErrors.Add(1)
					p.cfg.Logger.Warn("member not parseable", "member", m.Path, "error", err)
					continue
				}
				members.Add(1)
				if len(recs) == 0 {
					continue
				}
				select {
				case recordCh <- recs:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(recordCh)
	}()

	// Load: the single serialized write path.
	g.Go(func() error {
		for recs := range recordCh {
			for _, rec := range recs {
				if err := loader.Add(gctx, rec); err != nil {
					return err
				}
			}
		}
		return nil
	})

	err := g.Wait()

	report.Members += int(members.Load())
	report.ParseErrors += int(parseErrors.Load())
	report.MembersSkipped += int(nonJSON.Load())
	if walkStats != nil {
		report.MembersSkipped += walkStats.Skipped
	}
	return err
}

// structured reports whether a member path looks like record-bearing
// structured text.
func structured(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".json") || strings.HasSuffix(lower, ".jsonl")
}
