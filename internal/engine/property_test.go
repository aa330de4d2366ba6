package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"pgregory.net/rapid"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/embed"
	"github.com/cortexmem/cortex/internal/model"
	"github.com/cortexmem/cortex/internal/sector"
	"github.com/cortexmem/cortex/internal/store"
	"github.com/cortexmem/cortex/internal/store/sqlite"
)

// checkInvariants asserts the data-model guarantees over the whole store.
func checkInvariants(t *rapid.T, st store.Store) {
	ctx := context.Background()
	all, err := st.Memories().All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}

	ids := make(map[string]bool, len(all))
	for _, m := range all {
		ids[m.ID] = true

		if m.Salience < 0 || m.Salience > 1 {
			t.Fatalf("memory %s salience out of range: %f", m.ID, m.Salience)
		}
		if m.LastSeenAt < m.CreatedAt {
			t.Fatalf("memory %s last_seen_at before created_at", m.ID)
		}
		if !model.ValidSector(m.PrimarySector) {
			t.Fatalf("memory %s has unknown sector %s", m.ID, m.PrimarySector)
		}

		vecs, err := st.Vectors().ByMemory(ctx, m.ID)
		if err != nil {
			t.Fatalf("ByMemory: %v", err)
		}
		primary := false
		for _, v := range vecs {
			if !model.ValidSector(v.Sector) {
				t.Fatalf("vector sector %s invalid", v.Sector)
			}
			if v.Sector == m.PrimarySector {
				primary = true
			}
		}
		if !primary {
			t.Fatalf("memory %s lacks its primary sector vector", m.ID)
		}

		if len(m.MeanVec) > 0 {
			var norm float64
			for _, x := range m.MeanVec {
				norm += float64(x) * float64(x)
			}
			if math.Abs(math.Sqrt(norm)-1) > 1e-6 {
				t.Fatalf("memory %s mean_vec not unit length", m.ID)
			}
		}
	}

	for _, m := range all {
		edge, err := st.Waypoints().Outgoing(ctx, m.ID)
		if err != nil {
			t.Fatalf("Outgoing: %v", err)
		}
		if edge == nil {
			continue
		}
		if edge.Weight <= 0 || edge.Weight > 1 {
			t.Fatalf("waypoint %s->%s weight out of range: %f", edge.SrcID, edge.DstID, edge.Weight)
		}
		if !ids[edge.SrcID] || !ids[edge.DstID] {
			t.Fatalf("waypoint %s->%s references a missing memory", edge.SrcID, edge.DstID)
		}
	}
}

func TestEngineInvariantsUnderRandomOps(t *testing.T) {
	contents := []string{
		"the capital of France is Paris",
		"today I felt anxious about the deploy",
		"how to install the toolchain",
		"I realized the lesson from this outage",
		"yesterday we met in the office",
		"Alice leads the research team",
		"France exports wine",
	}
	users := []string{"", "u1", "u2"}

	dir := t.TempDir()
	iter := 0

	rapid.Check(t, func(rt *rapid.T) {
		iter++
		cfg := config.NewForTesting()
		st, err := sqlite.New(filepath.Join(dir, fmt.Sprintf("prop-%d.db", iter)))
		if err != nil {
			rt.Fatalf("open store: %v", err)
		}
		defer func() { _ = st.Close() }()

		emb := embed.NewCoordinator(cfg, nil, nil, zerolog.Nop())
		e := New(cfg, st, sector.New(), emb, zerolog.Nop())
		ctx := context.Background()
		var known []string

		steps := rapid.IntRange(5, 20).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 4).Draw(rt, "op") {
			case 0: // add
				out, err := e.Add(ctx, model.AddRequest{
					Content: rapid.SampledFrom(contents).Draw(rt, "content"),
					UserID:  rapid.SampledFrom(users).Draw(rt, "user"),
				})
				if err != nil {
					rt.Fatalf("add: %v", err)
				}
				known = append(known, out.MemoryID)
			case 1: // query
				if _, err := e.Query(ctx, model.QueryRequest{
					Text:   rapid.SampledFrom(contents).Draw(rt, "query"),
					UserID: rapid.SampledFrom(users).Draw(rt, "quser"),
					Limit:  rapid.IntRange(1, 5).Draw(rt, "limit"),
				}); err != nil {
					rt.Fatalf("query: %v", err)
				}
			case 2: // reinforce
				if len(known) == 0 {
					continue
				}
				id := rapid.SampledFrom(known).Draw(rt, "rid")
				if _, err := e.Reinforce(ctx, id, nil); err != nil && !errors.Is(err, model.ErrNotFound) {
					rt.Fatalf("reinforce: %v", err)
				}
			case 3: // delete
				if len(known) == 0 {
					continue
				}
				idx := rapid.IntRange(0, len(known)-1).Draw(rt, "didx")
				if err := e.Delete(ctx, known[idx]); err != nil && !errors.Is(err, model.ErrNotFound) {
					rt.Fatalf("delete: %v", err)
				}
				known = append(known[:idx], known[idx+1:]...)
			case 4: // stats
				if _, err := e.Stats(ctx); err != nil {
					rt.Fatalf("stats: %v", err)
				}
			}
			checkInvariants(rt, st)
		}
	})
}
