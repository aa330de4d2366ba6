package model

// Sector is one of the five cognitive categories a memory may belong to.
// The sector governs decay rate and scoring weight.
type Sector string

const (
	SectorEpisodic   Sector = "episodic"
	SectorSemantic   Sector = "semantic"
	SectorProcedural Sector = "procedural"
	SectorEmotional  Sector = "emotional"
	SectorReflective Sector = "reflective"
)

// Sectors lists all sectors in tie-break order: semantic wins ties, then
// episodic, procedural, emotional, reflective.
var Sectors = []Sector{
	SectorSemantic,
	SectorEpisodic,
	SectorProcedural,
	SectorEmotional,
	SectorReflective,
}

// SectorProfile carries the per-sector decay rate (per day) and the scoring
// weight applied during retrieval.
type SectorProfile struct {
	DecayLambda float64
	Weight      float64
}

// SectorProfiles maps each sector to its decay/weight profile.
var SectorProfiles = map[Sector]SectorProfile{
	SectorEpisodic:   {DecayLambda: 0.015, Weight: 1.2},
	SectorSemantic:   {DecayLambda: 0.005, Weight: 1.0},
	SectorProcedural: {DecayLambda: 0.008, Weight: 1.1},
	SectorEmotional:  {DecayLambda: 0.020, Weight: 1.3},
	SectorReflective: {DecayLambda: 0.001, Weight: 0.8},
}

// ValidSector reports whether s names a known sector.
func ValidSector(s Sector) bool {
	_, ok := SectorProfiles[s]
	return ok
}

// Memory is the core persisted record. Timestamps are epoch milliseconds.
type Memory struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId,omitempty"`
	Content       string            `json:"content"`
	PrimarySector Sector            `json:"primarySector"`
	Tags          []string          `json:"tags,omitempty"`
	Meta          map[string]string `json:"meta,omitempty"`
	CreatedAt     int64             `json:"createdAt"`
	UpdatedAt     int64             `json:"updatedAt"`
	LastSeenAt    int64             `json:"lastSeenAt"`
	Salience      float64           `json:"salience"`
	DecayLambda   float64           `json:"decayLambda"`
	MeanVec       []float32         `json:"-"`
	Cold          bool              `json:"cold"`
}

// Vector is one per-sector embedding row for a memory.
type Vector struct {
	MemoryID string    `json:"memoryId"`
	Sector   Sector    `json:"sector"`
	Vec      []float32 `json:"-"`
	Dim      int       `json:"dim"`
}

// Waypoint is a directed associative edge between two memories. Each source
// has at most one outgoing edge at any time.
type Waypoint struct {
	SrcID     string  `json:"srcId"`
	DstID     string  `json:"dstId"`
	Weight    float64 `json:"weight"`
	CreatedAt int64   `json:"createdAt"`
	UpdatedAt int64   `json:"updatedAt"`
}

// EmbedLog is an append-only observability record of one embedding attempt
// for one sector (synthetic or provider-backed).
type EmbedLog struct {
	ID          string `json:"id"`
	TS          int64  `json:"ts"`
	Provider    string `json:"provider"`
	Sector      Sector `json:"sector"`
	InputTokens int    `json:"inputTokens"`
	Dim         int    `json:"dim"`
	OK          bool   `json:"ok"`
}

// SectorCandidate is the per-sector scan row consumed by the query path.
type SectorCandidate struct {
	ID         string
	Vec        []float32
	Salience   float64
	LastSeenAt int64
}

// AddRequest is the input to Engine.Add.
type AddRequest struct {
	ID      string            `json:"id,omitempty"`
	Content string            `json:"content"`
	UserID  string            `json:"userId,omitempty"`
	Tags    []string          `json:"tags,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// AddResult reports the stored memory and any waypoints created.
type AddResult struct {
	MemoryID string      `json:"memoryId"`
	Sectors  []Sector    `json:"sectors"`
	Edges    []*Waypoint `json:"edges,omitempty"`
}

// QueryRequest is the input to Engine.Query.
type QueryRequest struct {
	Text     string   `json:"text"`
	UserID   string   `json:"userId,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Sector   Sector   `json:"sector,omitempty"`
	Tag      string   `json:"tag,omitempty"`
	MinScore *float64 `json:"minScore,omitempty"`
}

// Explanation breaks a composite score into its components and records the
// waypoints traversed to reach the memory.
type Explanation struct {
	Similarity float64    `json:"similarity"`
	Salience   float64    `json:"salience"`
	Recency    float64    `json:"recency"`
	Waypoint   float64    `json:"waypoint"`
	BM25       *float64   `json:"bm25,omitempty"`
	Traversed  []*Waypoint `json:"traversed,omitempty"`
}

// QueryResult is one ranked recall.
type QueryResult struct {
	Memory      *Memory     `json:"memory"`
	Score       float64     `json:"score"`
	Explanation Explanation `json:"explanation"`
}

// ListRequest captures filters used when listing memories.
type ListRequest struct {
	UserID string
	Sector Sector
	Tag    string
	Cursor string
	Limit  int
}

// ListPage is one page of memories plus the cursor for the next page.
type ListPage struct {
	Memories   []*Memory `json:"memories"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

// Stats summarizes engine state for the stats operation.
type Stats struct {
	Total        int64            `json:"total"`
	BySector     map[Sector]int64 `json:"bySector"`
	ByTier       map[string]int64 `json:"byTier"`
	Waypoints    int64            `json:"waypoints"`
	DecayLastRun int64            `json:"decayLastRun,omitempty"`
	PruneLastRun int64            `json:"pruneLastRun,omitempty"`
}
