package convert

import (
	"time"

	"niftiwork/internal/engine"
	"niftiwork/internal/instance"
)

type State string

const (
	StatePending    State = "pending"
	StateSkipped    State = "skipped"
	StateConverting State = "converting"
	StateConverted  State = "converted"
	StateFatal      State = "fatal"
)

// Policy governs how many inputs are processed and whether existing outputs block reconversion.
type Policy struct {
	AllowMultiInput       bool `json:"allow_multi_input"`
	OverwriteExistingFile bool `json:"overwrite_existing_file"`
}

// Batch holds the resolved artifacts of one instance. The three slices are
// index-aligned: Outputs[i] and Logs[i] belong to Inputs[i].
type Batch struct {
	Inputs  []*instance.Artifact
	Outputs []*instance.Artifact
	Logs    []*instance.Artifact
}

func (b Batch) Len() int { return len(b.Inputs) }

type ItemResult struct {
	Index        int           `json:"index"`
	Input        string        `json:"input"`
	Output       string        `json:"output"`
	Log          string        `json:"log,omitempty"`
	LogConfirmed bool          `json:"log_confirmed"`
	State        State         `json:"state"`
	Engine       engine.Engine `json:"engine,omitempty"`
	Message      string        `json:"message,omitempty"`
	Duration     time.Duration `json:"duration_ns,omitempty"`
}

// Report collects per-item outcomes of one controller run.
type Report struct {
	Instance string        `json:"instance"`
	Engine   engine.Engine `json:"engine"`
	Items    []ItemResult  `json:"items"`
	Dropped  int           `json:"dropped,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Count returns how many items ended in state s.
func (r *Report) Count(s State) int {
	n := 0
	for _, it := range r.Items {
		if it.State == s {
			n++
		}
	}
	return n
}
