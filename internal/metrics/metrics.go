// Package metrics derives tags, a completion score and efficiency figures from
// accumulated trace counters. Every function is pure: the same stats always
// yield the same output, so recomputing on each event is safe.
package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/dotcommander/hooktrace/internal/models"
)

// Thresholds tune the tag buckets.
type Thresholds struct {
	ToolHeavyCalls  int
	MultiFileFiles  int
	SmallEditLines  int
	MediumEditLines int
	ShortDuration   time.Duration
	MediumDuration  time.Duration
}

// DefaultThresholds mirrors the config defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ToolHeavyCalls:  20,
		MultiFileFiles:  3,
		SmallEditLines:  50,
		MediumEditLines: 500,
		ShortDuration:   time.Minute,
		MediumDuration:  10 * time.Minute,
	}
}

// Tag names.
const (
	TagTools       = "tools"
	TagToolHeavy   = "tool-heavy"
	TagShell       = "shell"
	TagHasDenial   = "has-denial"
	TagHasFailure  = "has-failure"
	TagEdits       = "edits"
	TagMultiFile   = "multi-file"
	TagReadOnly    = "read-only"
	tagEditsPrefix = "edits:"
	tagDurPrefix   = "duration:"
	tagStatPrefix  = "status:"
)

// Efficiency metric keys.
const (
	KeyToolSuccessRate   = "tool_success_rate"
	KeyEditsPerToolCall  = "edits_per_tool_call"
	KeyLinesChanged      = "lines_changed"
	KeyLinesPerEdit      = "lines_per_edit"
	KeyAvgToolDurationMS = "avg_tool_duration_ms"
	KeyDenialRate        = "denial_rate"
	KeyDurationSeconds   = "duration_seconds"
)

// Summary bundles everything derived from one stats snapshot.
type Summary struct {
	Tags       []string           `json:"tags"`
	Score      float64            `json:"completion_score"`
	Efficiency map[string]float64 `json:"efficiency"`
}

// Summarize computes tags, score and efficiency in one call.
func Summarize(s models.TraceStats, th Thresholds) Summary {
	return Summary{
		Tags:       Tags(s, th),
		Score:      CompletionScore(s),
		Efficiency: Efficiency(s),
	}
}

// Tags returns the sorted, de-duplicated tag set for s.
func Tags(s models.TraceStats, th Thresholds) []string {
	set := map[string]struct{}{}
	add := func(t string) { set[t] = struct{}{} }

	if s.ToolCalls > 0 {
		add(TagTools)
	}
	if th.ToolHeavyCalls > 0 && s.ToolCalls >= th.ToolHeavyCalls {
		add(TagToolHeavy)
	}
	if s.ShellCalls > 0 {
		add(TagShell)
	}
	if s.ToolDenials > 0 {
		add(TagHasDenial)
	}
	if s.ToolFailures > 0 {
		add(TagHasFailure)
	}

	if s.Edits > 0 {
		add(TagEdits)
		lines := s.LinesAdded + s.LinesRemoved
		switch {
		case lines < th.SmallEditLines:
			add(tagEditsPrefix + "small")
		case lines < th.MediumEditLines:
			add(tagEditsPrefix + "medium")
		default:
			add(tagEditsPrefix + "large")
		}
	} else if s.FileReads > 0 {
		add(TagReadOnly)
	}
	if th.MultiFileFiles > 0 && s.FilesTouched >= th.MultiFileFiles {
		add(TagMultiFile)
	}

	if d, ok := duration(s); ok {
		switch {
		case d < th.ShortDuration:
			add(tagDurPrefix + "short")
		case d < th.MediumDuration:
			add(tagDurPrefix + "medium")
		default:
			add(tagDurPrefix + "long")
		}
	}
	if s.EndStatus != "" {
		add(tagStatPrefix + string(s.EndStatus))
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// CompletionScore rates a conversation in [0, 1]:
//
//	0.7*status + 0.3*toolSuccessRate - min(0.3, 0.1*denials)
//
// status is 1 for completed, 0.5 while open, 0.25 for aborted and 0 for
// error. toolSuccessRate is 1 when no tool outcome was observed.
func CompletionScore(s models.TraceStats) float64 {
	var status float64
	switch s.EndStatus {
	case models.EndStatusCompleted:
		status = 1
	case models.EndStatusAborted:
		status = 0.25
	case models.EndStatusError:
		status = 0
	default:
		status = 0.5
	}

	rate := 1.0
	if outcomes := s.ToolSuccesses + s.ToolFailures; outcomes > 0 {
		rate = float64(s.ToolSuccesses) / float64(outcomes)
	}
	penalty := math.Min(0.3, 0.1*float64(s.ToolDenials))

	score := 0.7*status + 0.3*rate - penalty
	return round3(math.Max(0, math.Min(1, score)))
}

// Efficiency returns the defined efficiency metrics. A key is absent when its
// denominator is zero rather than reported as 0.
func Efficiency(s models.TraceStats) map[string]float64 {
	out := map[string]float64{}

	if outcomes := s.ToolSuccesses + s.ToolFailures; outcomes > 0 {
		out[KeyToolSuccessRate] = round3(float64(s.ToolSuccesses) / float64(outcomes))
	}
	if s.ToolCalls > 0 {
		out[KeyEditsPerToolCall] = round3(float64(s.Edits) / float64(s.ToolCalls))
		out[KeyDenialRate] = round3(float64(s.ToolDenials) / float64(s.ToolCalls))
	}
	if s.Edits > 0 {
		lines := s.LinesAdded + s.LinesRemoved
		out[KeyLinesChanged] = float64(lines)
		out[KeyLinesPerEdit] = round3(float64(lines) / float64(s.Edits))
	}
	if s.TimedToolCalls > 0 {
		out[KeyAvgToolDurationMS] = round3(float64(s.ToolDurationMS) / float64(s.TimedToolCalls))
	}
	if d, ok := duration(s); ok {
		out[KeyDurationSeconds] = round3(d.Seconds())
	}
	return out
}

// EfficiencyKeys returns m's keys in a stable order.
func EfficiencyKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func duration(s models.TraceStats) (time.Duration, bool) {
	if s.StartedAt.IsZero() || s.LastActivityAt.IsZero() || s.LastActivityAt.Before(s.StartedAt) {
		return 0, false
	}
	return s.LastActivityAt.Sub(s.StartedAt), true
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
