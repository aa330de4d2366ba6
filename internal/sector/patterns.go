package sector

import "github.com/cortexmem/cortex/internal/model"

// defaultPatterns is the built-in pattern table. Patterns are compiled
// case-insensitively. The table can be replaced at runtime via LoadFile
// without touching stored data.
var defaultPatterns = map[model.Sector][]string{
	model.SectorEpisodic: {
		`\btoday\b`, `\byesterday\b`, `\btomorrow\b`,
		`\blast (night|week|month|year)\b`,
		`\bthis (morning|afternoon|evening|week)\b`,
		`\bago\b`, `\bearlier\b`, `\bjust now\b`,
		`\bon (monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`,
		`\bhappened\b`, `\bremember when\b`,
		`\bwe (went|met|talked|visited|saw)\b`,
		`\b(19|20)\d{2}-\d{2}-\d{2}\b`,
	},
	model.SectorSemantic: {
		`\bis (a|an|the)\b`, `\bare (a|an|the)\b`,
		`\bmeans\b`, `\bdefined as\b`, `\brefers to\b`,
		`\bcapital of\b`, `\bconsists of\b`, `\bknown as\b`,
		`\bfact\b`, `\bdefinition\b`,
	},
	model.SectorProcedural: {
		`\bhow to\b`, `\bstep(s| \d)\b`, `\bfirst\b.*\bthen\b`,
		`\binstall\b`, `\bconfigure\b`, `\bcompile\b`,
		`\bprocedure\b`, `\brecipe\b`, `\bworkflow\b`,
		`\bin order to\b`, `\bmake sure (to|you)\b`,
	},
	model.SectorEmotional: {
		`\bfelt\b`, `\bfeel(s|ing)?\b`,
		`\bhappy\b`, `\bsad\b`, `\bangry\b`, `\banxious\b`,
		`\bafraid\b`, `\bscared\b`, `\bnervous\b`, `\bworried\b`,
		`\bexcited\b`, `\bfrustrat(ed|ing)\b`, `\bproud\b`,
		`\blove[ds]?\b`, `\bhate[ds]?\b`, `\bupset\b`,
	},
	model.SectorReflective: {
		`\bi (realized|realize|learned|noticed)\b`,
		`\bin hindsight\b`, `\blooking back\b`,
		`\binsight\b`, `\blesson\b`, `\btakeaway\b`,
		`\bi should have\b`, `\bnext time i\b`,
		`\breflect(ing|ion)?\b`, `\bon reflection\b`,
	},
}
