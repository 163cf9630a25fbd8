// Package detector runs the pattern based security and scalability
// assessments. Findings are partly sampled, so every detector draws from an
// injected *rand.Rand and tests can pin the outcome with a fixed source.
package detector

import (
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"codeguardian/internal/logging"
	"codeguardian/types"
)

const (
	DepthBasic         = "basic"
	DepthStandard      = "standard"
	DepthDeep          = "deep"
	DepthComprehensive = "comprehensive"

	// LevelUnknown is reported when there was no code to assess.
	LevelUnknown = "unknown"

	maxWeight      = 30
	maxExtraLines  = 5
	lowSampleLimit = 0.5
)

type depthAction int

const (
	keepEntry depthAction = iota
	dropEntry
	sampleEntry
)

// engine holds the random source shared by one detector. *rand.Rand is not
// safe for concurrent use, so every draw happens under mu.
type engine struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

func newEngine(rng *rand.Rand) *engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &engine{rng: rng, now: time.Now}
}

// admit decides whether one catalog entry is reported for the code and, if
// so, the simulated line range. The caller must hold e.mu.
func (e *engine) admit(lowered string, lines int, patterns []string, threshold float64, action depthAction) (int, int, bool) {
	switch action {
	case dropEntry:
		return 0, 0, false
	case sampleEntry:
		if e.rng.Float64() > lowSampleLimit {
			return 0, 0, false
		}
	}

	hit := containsAny(lowered, patterns)
	// The sampling draw happens on every entry so a given seed always
	// produces the same sequence regardless of pattern hits.
	sampled := e.rng.Float64() < threshold
	if !hit && !sampled {
		return 0, 0, false
	}

	start := e.rng.Intn(lines) + 1
	end := start + e.rng.Intn(maxExtraLines)
	return start, end, true
}

func containsAny(lowered string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(lowered, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func lineCount(code string) int {
	return len(strings.Split(code, "\n"))
}

func normalizeDepth(depth string) string {
	depth = strings.ToLower(strings.TrimSpace(depth))
	if depth == "" {
		return DepthStandard
	}
	return depth
}

// normalizeTypes lowercases the requested categories and drops unknown ones.
// An empty request selects every category in catalog order.
func normalizeTypes(requested []string, known []string, detector string) []string {
	if len(requested) == 0 {
		return append([]string(nil), known...)
	}

	valid := make(map[string]bool, len(known))
	for _, k := range known {
		valid[k] = true
	}

	seen := make(map[string]bool, len(requested))
	out := make([]string, 0, len(requested))
	for _, r := range requested {
		r = strings.ToLower(strings.TrimSpace(r))
		if seen[r] {
			continue
		}
		if !valid[r] {
			logging.L_warn("Ignoring unknown assessment type", "detector", detector, "type", r)
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

func countSeverities(severities []types.Severity) types.SeverityCounts {
	var counts types.SeverityCounts
	for _, s := range severities {
		switch s {
		case types.SeverityCritical:
			counts.Critical++
		case types.SeverityHigh:
			counts.High++
		case types.SeverityMedium:
			counts.Medium++
		case types.SeverityLow:
			counts.Low++
		}
	}
	return counts
}

// Score maps weighted severity counts to 0-100, higher is better. The
// weight saturates at 30.
func Score(counts types.SeverityCounts) int {
	weight := counts.Critical*10 + counts.High*5 + counts.Medium*2 + counts.Low
	if weight > maxWeight {
		weight = maxWeight
	}
	score := int(math.Round(100 - float64(weight)/maxWeight*100))
	if score < 0 {
		return 0
	}
	return score
}

// grade picks one of four labels, worst first, with the shared thresholds.
func grade(counts types.SeverityCounts, labels [4]string) string {
	switch {
	case counts.Critical > 0 || counts.High > 2:
		return labels[0]
	case counts.High > 0 || counts.Medium > 3:
		return labels[1]
	case counts.Medium > 0 || counts.Low > 5:
		return labels[2]
	default:
		return labels[3]
	}
}
