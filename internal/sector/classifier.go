// Package sector classifies text into cognitive sectors with a
// deterministic, rule-based matcher.
package sector

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/cortexmem/cortex/internal/model"
)

// candidateFloor is the minimum confidence for a sector to join the
// candidate set alongside the primary.
const candidateFloor = 0.2

// Result is the outcome of classifying one text.
type Result struct {
	Primary     model.Sector             `json:"primary"`
	Confidences map[model.Sector]float64 `json:"confidences"`
	Candidates  []model.Sector           `json:"candidates"`
}

// Classifier matches per-sector pattern sets against input text. The
// pattern table is swappable at runtime; classification itself is pure.
type Classifier struct {
	mu       sync.RWMutex
	patterns map[model.Sector][]*regexp.Regexp
}

// New returns a Classifier loaded with the built-in pattern table.
func New() *Classifier {
	c := &Classifier{}
	compiled, err := compile(defaultPatterns)
	if err != nil {
		// Built-in patterns are static; a compile failure is a programming error.
		panic(err)
	}
	c.patterns = compiled
	return c
}

// LoadFile replaces the pattern table from a JSON file mapping sector names
// to regexp lists. Stored memories are unaffected.
func (c *Classifier) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read patterns: %w", err)
	}
	var table map[model.Sector][]string
	if err := json.Unmarshal(raw, &table); err != nil {
		return fmt.Errorf("parse patterns: %w", err)
	}
	for s := range table {
		if !model.ValidSector(s) {
			return fmt.Errorf("unknown sector in patterns: %s: %w", s, model.ErrInvalidInput)
		}
	}
	compiled, err := compile(table)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.patterns = compiled
	c.mu.Unlock()
	return nil
}

func compile(table map[model.Sector][]string) (map[model.Sector][]*regexp.Regexp, error) {
	out := make(map[model.Sector][]*regexp.Regexp, len(table))
	for s, pats := range table {
		for _, p := range pats {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("compile pattern %q for %s: %w", p, s, err)
			}
			out[s] = append(out[s], re)
		}
	}
	return out, nil
}

// Classify scores text against every sector's patterns. The primary sector
// is the highest-confidence match, ties broken by the fixed order in
// model.Sectors; with no match at all it defaults to semantic at
// confidence 0.
func (c *Classifier) Classify(text string) Result {
	c.mu.RLock()
	patterns := c.patterns
	c.mu.RUnlock()

	conf := make(map[model.Sector]float64, len(model.Sectors))
	for _, s := range model.Sectors {
		matches := 0
		for _, re := range patterns[s] {
			if re.MatchString(text) {
				matches++
			}
		}
		conf[s] = float64(matches) / float64(matches+1)
	}

	primary := model.SectorSemantic
	best := -1.0
	for _, s := range model.Sectors {
		if conf[s] > best {
			best = conf[s]
			primary = s
		}
	}

	var candidates []model.Sector
	for _, s := range model.Sectors {
		if s == primary || conf[s] >= candidateFloor {
			candidates = append(candidates, s)
		}
	}

	return Result{Primary: primary, Confidences: conf, Candidates: candidates}
}
