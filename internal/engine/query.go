package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/embed"
	"github.com/cortexmem/cortex/internal/model"
	"github.com/cortexmem/cortex/internal/rank"
)

// minScanDepth is the per-sector candidate floor: K' = max(K, 20).
const minScanDepth = 20

// hopDiscount damps similarity inherited through a waypoint hop.
const hopDiscount = 0.9

// candidate accumulates per-memory state while ranking.
type candidate struct {
	id        string
	sim       float64
	traversed []*model.Waypoint
	outgoing  *model.Waypoint
	memory    *model.Memory
}

// Query embeds the query text for its candidate sectors, scans stored
// vectors, expands one hop along waypoints, ranks by the composite score
// and applies recall reinforcement to everything returned.
func (e *Engine) Query(ctx context.Context, req model.QueryRequest) ([]*model.QueryResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("query text is required: %w", model.ErrInvalidInput)
	}
	if req.Limit < 0 {
		return nil, fmt.Errorf("limit must be non-negative: %w", model.ErrInvalidInput)
	}
	limit := req.Limit
	if limit == 0 {
		limit = 10
	}

	var sectors []model.Sector
	if req.Sector != "" {
		if !model.ValidSector(req.Sector) {
			return nil, fmt.Errorf("unknown sector %q: %w", req.Sector, model.ErrInvalidInput)
		}
		sectors = []model.Sector{req.Sector}
	} else {
		sectors = e.cls.Classify(req.Text).Candidates
	}

	batch := e.emb.EmbedBatch(ctx, req.Text, sectors)
	if len(batch.Vecs) == 0 {
		for _, err := range batch.Errs {
			return nil, fmt.Errorf("query embedding: %w", err)
		}
		return nil, fmt.Errorf("query embedding produced no vectors: %w", model.ErrEmbedFailed)
	}

	scanDepth := limit
	if scanDepth < minScanDepth {
		scanDepth = minScanDepth
	}

	cands, err := e.collectCandidates(ctx, req.UserID, sectors, batch, scanDepth)
	if err != nil {
		return nil, err
	}
	if err := e.expandWaypoints(ctx, cands); err != nil {
		return nil, err
	}

	results, err := e.scoreCandidates(ctx, req, cands)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Memory.LastSeenAt != results[j].Memory.LastSeenAt {
			return results[i].Memory.LastSeenAt > results[j].Memory.LastSeenAt
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}

	e.reinforceRecall(ctx, results, cands)
	return results, nil
}

// collectCandidates scans each sector's stored vectors, keeps the top
// scanDepth per sector and unions them with per-memory max similarity.
func (e *Engine) collectCandidates(ctx context.Context, userID string, sectors []model.Sector, batch embed.BatchResult, scanDepth int) (map[string]*candidate, error) {
	type scored struct {
		id  string
		cos float64
	}
	union := make(map[string]*candidate)
	for _, s := range sectors {
		qvec, ok := batch.Vecs[s]
		if !ok {
			continue
		}
		rows, err := e.store.Vectors().BySector(ctx, userID, s)
		if err != nil {
			return nil, err
		}
		hits := make([]scored, 0, len(rows))
		for _, row := range rows {
			hits = append(hits, scored{id: row.ID, cos: embed.Cosine(qvec, row.Vec)})
		}
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].cos != hits[j].cos {
				return hits[i].cos > hits[j].cos
			}
			return hits[i].id < hits[j].id
		})
		if len(hits) > scanDepth {
			hits = hits[:scanDepth]
		}
		for _, h := range hits {
			if c, ok := union[h.id]; !ok || h.cos > c.sim {
				union[h.id] = &candidate{id: h.id, sim: h.cos}
			}
		}
	}
	return union, nil
}

// expandWaypoints pulls each candidate's outgoing neighbor into the set
// (one hop) with discounted similarity.
func (e *Engine) expandWaypoints(ctx context.Context, cands map[string]*candidate) error {
	ids := make([]string, 0, len(cands))
	for id := range cands {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		c := cands[id]
		edge, err := e.store.Waypoints().Outgoing(ctx, id)
		if err != nil {
			return err
		}
		if edge == nil {
			continue
		}
		c.outgoing = edge
		if _, ok := cands[edge.DstID]; ok {
			continue
		}
		cands[edge.DstID] = &candidate{
			id:        edge.DstID,
			sim:       c.sim * edge.Weight * hopDiscount,
			traversed: append(append([]*model.Waypoint{}, c.traversed...), edge),
		}
	}

	// Fetch outgoing edges for neighbors added during expansion; they feed
	// the waypoint component of the composite score.
	for _, c := range cands {
		if c.outgoing != nil || len(c.traversed) == 0 {
			continue
		}
		edge, err := e.store.Waypoints().Outgoing(ctx, c.id)
		if err != nil {
			return err
		}
		c.outgoing = edge
	}
	return nil
}

// scoreCandidates loads memory rows, applies tag filtering, blends the
// hybrid BM25 channel and computes composite scores above the floor.
func (e *Engine) scoreCandidates(ctx context.Context, req model.QueryRequest, cands map[string]*candidate) ([]*model.QueryResult, error) {
	minScore := e.cfg.MinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}

	ordered := make([]*candidate, 0, len(cands))
	for _, c := range cands {
		m, err := e.store.Memories().Get(ctx, c.id)
		if err != nil {
			// A concurrent delete between scan and load is not an error.
			continue
		}
		if req.Tag != "" && !containsTag(m.Tags, req.Tag) {
			continue
		}
		c.memory = m
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })

	hybrid := config.Tier(e.cfg.Tier) == config.TierHybrid
	var bm25 []float64
	if hybrid {
		query := embed.Tokenize(req.Text)
		docs := make([][]string, len(ordered))
		for i, c := range ordered {
			docs[i] = embed.Tokenize(c.memory.Content)
		}
		bm25 = rank.BM25(query, docs)
	}

	now := e.now()
	var results []*model.QueryResult
	for i, c := range ordered {
		sim := rank.ClampSim(c.sim)
		var bm25Score *float64
		if hybrid {
			s := bm25[i]
			sim = rank.BlendHybrid(sim, s)
			bm25Score = &s
		}
		var waypoint float64
		if c.outgoing != nil {
			waypoint = c.outgoing.Weight
		}
		comp := rank.Components{
			Sim:      sim,
			Salience: c.memory.Salience,
			Recency:  rank.Recency(c.memory.LastSeenAt, now),
			Waypoint: waypoint,
		}
		score := rank.Composite(comp)
		if score < minScore {
			continue
		}
		results = append(results, &model.QueryResult{
			Memory: c.memory,
			Score:  score,
			Explanation: model.Explanation{
				Similarity: comp.Sim,
				Salience:   comp.Salience,
				Recency:    comp.Recency,
				Waypoint:   comp.Waypoint,
				BM25:       bm25Score,
				Traversed:  c.traversed,
			},
		})
	}
	return results, nil
}

// reinforceRecall applies the implicit recall side effects: salience and
// last-seen bumps for every returned memory, weight bumps for traversed
// edges, and cold restoration. Failures are logged, never fatal.
func (e *Engine) reinforceRecall(ctx context.Context, results []*model.QueryResult, cands map[string]*candidate) {
	now := e.now()
	for _, r := range results {
		m := r.Memory
		mu := e.stripe(m.ID)
		mu.Lock()
		next := m.Salience + e.cfg.SalienceReinforceDelta
		if next > 1 {
			next = 1
		}
		seen := now
		if seen <= m.LastSeenAt {
			seen = m.LastSeenAt + 1
		}
		if err := e.store.Memories().UpdateSalience(ctx, m.ID, next, seen); err != nil {
			e.log.Warn().Err(err).Str("memory", m.ID).Msg("recall reinforcement failed")
		}
		if m.Cold {
			if err := e.store.Memories().RestoreHeat(ctx, m.ID); err != nil {
				e.log.Warn().Err(err).Str("memory", m.ID).Msg("cold restore failed")
			}
		}
		mu.Unlock()

		for _, edge := range cands[m.ID].traversed {
			if err := e.store.Waypoints().Reinforce(ctx, edge.SrcID, edge.DstID, e.cfg.WaypointReinforceDelta, now); err != nil {
				e.log.Warn().Err(err).Str("src", edge.SrcID).Msg("waypoint reinforcement failed")
			}
		}
	}
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
