package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/cortexmem/cortex/internal/embed"
	"github.com/cortexmem/cortex/internal/model"
)

// Add classifies and embeds content, finds the best waypoint target among
// the user's existing memories, and persists everything atomically.
func (e *Engine) Add(ctx context.Context, req model.AddRequest) (*model.AddResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("content is required: %w", model.ErrInvalidInput)
	}
	id := req.ID
	if id == "" {
		id = ulid.Make().String()
	}

	cls := e.cls.Classify(req.Content)

	batch := e.emb.EmbedBatch(ctx, req.Content, cls.Candidates)
	if err, ok := batch.Errs[cls.Primary]; ok {
		return nil, fmt.Errorf("primary sector %s: %w", cls.Primary, err)
	}

	var vectors []*model.Vector
	var raw [][]float32
	var sectors []model.Sector
	for _, s := range cls.Candidates {
		vec, ok := batch.Vecs[s]
		if !ok {
			continue // dropped by the failure policy, already logged
		}
		vectors = append(vectors, &model.Vector{MemoryID: id, Sector: s, Vec: vec, Dim: len(vec)})
		raw = append(raw, vec)
		sectors = append(sectors, s)
	}
	sort.Slice(sectors, func(i, j int) bool { return sectors[i] < sectors[j] })

	now := e.now()
	m := &model.Memory{
		ID:            id,
		UserID:        req.UserID,
		Content:       req.Content,
		PrimarySector: cls.Primary,
		Tags:          req.Tags,
		Meta:          req.Meta,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastSeenAt:    now,
		Salience:      0.5,
		DecayLambda:   model.SectorProfiles[cls.Primary].DecayLambda,
		MeanVec:       embed.MeanVec(raw, meanVecDim),
	}

	edges, err := e.bestWaypoint(ctx, m, now)
	if err != nil {
		return nil, err
	}

	mu := e.stripe(id)
	mu.Lock()
	err = e.store.Memories().Insert(ctx, m, vectors, edges)
	mu.Unlock()
	if err != nil {
		return nil, err
	}

	return &model.AddResult{MemoryID: id, Sectors: sectors, Edges: edges}, nil
}

// bestWaypoint scans existing mean vectors in the same user scope and
// returns the edge(s) to create: the new memory's outgoing edge when the
// best cosine clears the threshold, plus a reciprocal edge when the
// primary sectors differ.
func (e *Engine) bestWaypoint(ctx context.Context, m *model.Memory, now int64) ([]*model.Waypoint, error) {
	if len(m.MeanVec) == 0 {
		return nil, nil
	}
	refs, err := e.store.Memories().MeanVecs(ctx, m.UserID)
	if err != nil {
		return nil, err
	}

	var best *struct {
		id     string
		sector model.Sector
		cos    float64
	}
	for _, ref := range refs {
		if ref.ID == m.ID || len(ref.MeanVec) == 0 {
			continue
		}
		cos := embed.Cosine(m.MeanVec, ref.MeanVec)
		if best == nil || cos > best.cos {
			best = &struct {
				id     string
				sector model.Sector
				cos    float64
			}{ref.ID, ref.PrimarySector, cos}
		}
	}
	if best == nil || best.cos < e.cfg.WaypointThreshold {
		return nil, nil
	}

	weight := best.cos
	if weight > 1 {
		weight = 1
	}
	edges := []*model.Waypoint{
		{SrcID: m.ID, DstID: best.id, Weight: weight, CreatedAt: now, UpdatedAt: now},
	}
	if best.sector != m.PrimarySector {
		edges = append(edges, &model.Waypoint{SrcID: best.id, DstID: m.ID, Weight: weight, CreatedAt: now, UpdatedAt: now})
	}
	return edges, nil
}
