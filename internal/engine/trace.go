package engine

type NodeKind string

const (
	KindCategory NodeKind = "category"
	KindGroup    NodeKind = "group"
	KindVariable NodeKind = "variable"
)

type Decision string

const (
	Included                   Decision = "included"
	SkippedByProbability       Decision = "skipped_by_probability"
	SkippedByScope             Decision = "skipped_by_scope"
	SkippedByGender            Decision = "skipped_by_gender"
	SkippedBySourceUnavailable Decision = "skipped_by_source_unavailable"
	// SaturatedSelection means the node was included and every eligible
	// child was chosen because fewer were eligible than requested.
	SaturatedSelection Decision = "saturated_selection"
	CyclicVariable     Decision = "cyclic_variable"
	MaxDepthExceeded   Decision = "max_depth_exceeded"
	UnresolvedVariable Decision = "unresolved_variable"
	CyclicReference    Decision = "cyclic_reference"
)

// IsWarning reports whether d points at an authoring problem the UI should
// surface.
func (d Decision) IsWarning() bool {
	switch d {
	case SkippedBySourceUnavailable, CyclicVariable, MaxDepthExceeded, UnresolvedVariable, CyclicReference:
		return true
	}
	return false
}

// IsIncluded reports whether the node contributed to the output.
func (d Decision) IsIncluded() bool {
	return d == Included || d == SaturatedSelection
}

// TraceEntry is one decision about one node. For variables NodeID is the
// variable name.
type TraceEntry struct {
	NodeID   string   `json:"node_id" yaml:"node_id"`
	Kind     NodeKind `json:"kind" yaml:"kind"`
	Decision Decision `json:"decision" yaml:"decision"`
	Chosen   []string `json:"chosen,omitempty" yaml:"chosen,omitempty"`
	Detail   string   `json:"detail,omitempty" yaml:"detail,omitempty"`
}

type Trace []TraceEntry

// Find returns the first entry for nodeID.
func (t Trace) Find(nodeID string) (TraceEntry, bool) {
	for _, e := range t {
		if e.NodeID == nodeID {
			return e, true
		}
	}
	return TraceEntry{}, false
}

// Decisions returns every decision recorded for nodeID, in order.
func (t Trace) Decisions(nodeID string) []Decision {
	var out []Decision
	for _, e := range t {
		if e.NodeID == nodeID {
			out = append(out, e.Decision)
		}
	}
	return out
}

func (t Trace) Warnings() Trace {
	var out Trace
	for _, e := range t {
		if e.Decision.IsWarning() {
			out = append(out, e)
		}
	}
	return out
}

// Result is the outcome of one expansion.
type Result struct {
	PresetID string `json:"preset_id" yaml:"preset_id"`
	Seed     uint64 `json:"seed" yaml:"seed"`
	Text     string `json:"text" yaml:"text"`
	Trace    Trace  `json:"trace" yaml:"trace"`
}
