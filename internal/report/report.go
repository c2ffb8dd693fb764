// Package report aggregates the durable evolution state into a printable
// status report: gene catalogue, capability tree, event counts and the
// current strategy posture.
package report

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"evoloop/internal/captree"
	"evoloop/internal/engine"
	"evoloop/internal/gene"
	"evoloop/internal/personality"
	"evoloop/internal/store"
	"evoloop/internal/vfm"
)

// Report is the aggregated snapshot.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`

	Genes       []*gene.Gene      `json:"genes"`
	Tree        *captree.Tree     `json:"tree"`
	Capsules    int               `json:"capsules"`
	Personality personality.State `json:"personality"`
	Weights     vfm.Weights       `json:"weights"`

	EventCounts  map[store.EventType]int `json:"event_counts"`
	RecentDenied int                     `json:"recent_denied"`

	PruneReport *captree.PruneReport `json:"prune_report"`
}

// Build loads every state asset concurrently and assembles the snapshot.
// The SQLite index is rebuilt from the event log first so its counts always
// reflect the NDJSON source of truth.
func Build(ctx context.Context, st store.Store, dataDir string, now time.Time) (*Report, error) {
	r := &Report{GeneratedAt: now}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		genes, err := st.LoadGenes()
		if err != nil {
			return err
		}
		r.Genes = genes
		return nil
	})
	g.Go(func() error {
		tree, err := st.LoadTree()
		if err != nil {
			return err
		}
		r.Tree = tree
		r.PruneReport = captree.Analyze(tree, now)
		return nil
	})
	g.Go(func() error {
		capsules, err := st.LoadCapsules()
		if err != nil {
			return err
		}
		r.Capsules = len(capsules)
		return nil
	})
	g.Go(func() error {
		r.Personality = personality.Default()
		_, err := st.LoadDoc(engine.DocPersonality, &r.Personality)
		return err
	})
	g.Go(func() error {
		r.Weights = vfm.DefaultWeights()
		_, err := st.LoadDoc(engine.DocWeights, &r.Weights)
		return err
	})
	g.Go(func() error {
		return r.indexEvents(ctx, st, dataDir, now)
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	return r, nil
}

func (r *Report) indexEvents(ctx context.Context, st store.Store, dataDir string, now time.Time) error {
	events, err := st.LoadEvents()
	if err != nil {
		return err
	}

	ix, err := store.OpenEventIndex(filepath.Join(dataDir, "events.db"))
	if err != nil {
		return err
	}
	defer ix.Close()

	if err := ix.Rebuild(ctx, events); err != nil {
		return err
	}
	if r.EventCounts, err = ix.CountsByType(ctx); err != nil {
		return err
	}
	r.RecentDenied, err = ix.CountSince(ctx, store.EventMutationDenied, now.AddDate(0, 0, -7))
	return err
}

// TopGenes returns up to n genes ordered by cached value score, highest
// first; unscored genes sort last.
func (r *Report) TopGenes(n int) []*gene.Gene {
	genes := append([]*gene.Gene(nil), r.Genes...)
	sort.SliceStable(genes, func(i, j int) bool {
		return scoreOf(genes[i]) > scoreOf(genes[j])
	})
	if len(genes) > n {
		genes = genes[:n]
	}
	return genes
}

func scoreOf(g *gene.Gene) int {
	if g.VScore == nil {
		return -1
	}
	return *g.VScore
}
