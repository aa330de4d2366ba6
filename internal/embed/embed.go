package embed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/model"
)

// Dimensionalities per tier.
const (
	smartDim = 384
	deepDim  = 1536
)

const maxProviderRetries = 2

// Embedder is the capability set consumed by the engine: single and batched
// embedding plus the tier-derived dimensionality per sector. The concrete
// variant is picked at engine construction and injected.
type Embedder interface {
	EmbedOne(ctx context.Context, text string, s model.Sector) ([]float32, error)
	EmbedBatch(ctx context.Context, text string, sectors []model.Sector) BatchResult
	DimForSector(s model.Sector) int
	ProviderName() string
}

// LogSink receives one append-only record per embedding attempt.
type LogSink interface {
	Append(ctx context.Context, rec *model.EmbedLog) error
}

// BatchResult maps each requested sector to its vector, or to the error
// that prevented one. A sector appears in exactly one of the two maps.
type BatchResult struct {
	Vecs map[model.Sector][]float32
	Errs map[model.Sector]error
}

// Coordinator routes each sector to the synthetic embedder or the external
// provider according to the performance tier, applying the batching mode,
// a bounded per-call timeout and retry, and embed logging.
type Coordinator struct {
	tier     config.Tier
	mode     string
	provider Provider
	synth    *Synthetic
	timeout  time.Duration
	sink     LogSink
	log      zerolog.Logger
}

var _ Embedder = (*Coordinator)(nil)

// NewCoordinator builds the tiered coordinator. provider may be nil, in
// which case every sector falls back to synthetic vectors at the tier's
// dimensionality. sink may be nil to disable embed logging.
func NewCoordinator(cfg *config.Config, provider Provider, sink LogSink, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		tier:     config.Tier(cfg.Tier),
		mode:     cfg.EmbedMode,
		provider: provider,
		synth:    NewSynthetic(),
		timeout:  time.Duration(cfg.EmbedTimeoutSec) * time.Second,
		sink:     sink,
		log:      log,
	}
}

// ProviderName reports the active backend ("synthetic" when none).
func (c *Coordinator) ProviderName() string {
	if c.provider == nil {
		return c.synth.Name()
	}
	return c.provider.Name()
}

// semanticClass reports whether a sector carries knowledge-like content
// that benefits from provider embeddings in the SMART tier.
func semanticClass(s model.Sector) bool {
	return s == model.SectorSemantic || s == model.SectorReflective
}

// DimForSector returns the vector dimensionality for a sector under the
// configured tier. All vectors within one (tier, sector) share this dim.
func (c *Coordinator) DimForSector(s model.Sector) int {
	switch c.tier {
	case config.TierSmart:
		if semanticClass(s) {
			return smartDim
		}
		return SyntheticDim
	case config.TierDeep:
		return deepDim
	default:
		return SyntheticDim
	}
}

// providerBacked reports whether the sector's vector comes from the
// external provider under the configured tier.
func (c *Coordinator) providerBacked(s model.Sector) bool {
	if c.provider == nil {
		return false
	}
	switch c.tier {
	case config.TierDeep:
		return true
	case config.TierSmart:
		return semanticClass(s)
	default:
		return false
	}
}

// EmbedOne embeds text for a single sector.
func (c *Coordinator) EmbedOne(ctx context.Context, text string, s model.Sector) ([]float32, error) {
	res := c.EmbedBatch(ctx, text, []model.Sector{s})
	if err, ok := res.Errs[s]; ok {
		return nil, err
	}
	return res.Vecs[s], nil
}

// EmbedBatch embeds text for every requested sector. Synthetic sectors
// never fail; provider sectors that fail land in Errs and are logged, so
// the caller can apply the primary-sector failure policy.
func (c *Coordinator) EmbedBatch(ctx context.Context, text string, sectors []model.Sector) BatchResult {
	res := BatchResult{
		Vecs: make(map[model.Sector][]float32, len(sectors)),
		Errs: make(map[model.Sector]error),
	}

	var external []model.Sector
	seen := make(map[model.Sector]bool, len(sectors))
	for _, s := range sectors {
		if seen[s] {
			continue
		}
		seen[s] = true
		if c.providerBacked(s) {
			external = append(external, s)
			continue
		}
		dim := c.DimForSector(s)
		res.Vecs[s] = c.synth.EmbedSector(text, s, dim)
		c.appendLog(ctx, c.synth.Name(), s, text, dim, true)
	}
	if len(external) == 0 {
		return res
	}

	if c.mode == "advanced" {
		// One provider call per sector, conditioning the input on the sector.
		for _, s := range external {
			dim := c.DimForSector(s)
			vecs, err := c.callProvider(ctx, []string{string(s) + ": " + text}, dim)
			if err != nil {
				c.failSector(ctx, &res, s, text, dim, err)
				continue
			}
			res.Vecs[s] = vecs[0]
			c.appendLog(ctx, c.provider.Name(), s, text, dim, true)
		}
		return res
	}

	// Simple mode: one batched call; sectors share the source text, so one
	// vector per distinct dim covers them all.
	byDim := make(map[int][]model.Sector)
	for _, s := range external {
		d := c.DimForSector(s)
		byDim[d] = append(byDim[d], s)
	}
	for dim, group := range byDim {
		vecs, err := c.callProvider(ctx, []string{text}, dim)
		if err != nil {
			for _, s := range group {
				c.failSector(ctx, &res, s, text, dim, err)
			}
			continue
		}
		for _, s := range group {
			v := make([]float32, len(vecs[0]))
			copy(v, vecs[0])
			res.Vecs[s] = v
			c.appendLog(ctx, c.provider.Name(), s, text, dim, true)
		}
	}
	return res
}

// callProvider applies the bounded timeout and retry policy to one
// provider invocation.
func (c *Coordinator) callProvider(ctx context.Context, texts []string, dim int) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out [][]float32
	op := func() error {
		vecs, err := c.provider.Embed(ctx, texts, dim)
		if err != nil {
			return err
		}
		out = vecs
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxProviderRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Coordinator) failSector(ctx context.Context, res *BatchResult, s model.Sector, text string, dim int, err error) {
	embErr := &model.EmbedError{
		Sector:   s,
		Provider: c.provider.Name(),
		Reason:   err,
		TimedOut: errors.Is(err, context.DeadlineExceeded),
	}
	res.Errs[s] = embErr
	c.log.Warn().Err(err).Str("sector", string(s)).Str("provider", c.provider.Name()).Msg("sector embedding dropped")
	c.appendLog(ctx, c.provider.Name(), s, text, dim, false)
}

func (c *Coordinator) appendLog(ctx context.Context, provider string, s model.Sector, text string, dim int, ok bool) {
	if c.sink == nil {
		return
	}
	rec := &model.EmbedLog{
		ID:          uuid.New().String(),
		TS:          time.Now().UnixMilli(),
		Provider:    provider,
		Sector:      s,
		InputTokens: len(strings.Fields(text)),
		Dim:         dim,
		OK:          ok,
	}
	if err := c.sink.Append(ctx, rec); err != nil {
		c.log.Warn().Err(err).Msg("embed log append failed")
	}
}
