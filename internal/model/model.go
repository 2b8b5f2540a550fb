// Package model defines the run and lead records shared across the pipeline.
package model

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusQueued  RunStatus = "queued"
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunStatusDone || s == RunStatusFailed
}

// Progress is the mutable progress block of a run. Total counts leads
// inserted so far; ExternalJobID is the handle of an in-flight external
// job (used for best-effort aborts) and is written independently of the
// other two fields so concurrent writers never clobber it.
type Progress struct {
	Total         int    `json:"total"`
	Message       string `json:"message"`
	ExternalJobID string `json:"external_job_id,omitempty"`
}

// RunInput holds the immutable parameters of a run.
type RunInput struct {
	City        string   `json:"city" yaml:"city"`
	State       string   `json:"state" yaml:"state"`
	RadiusMiles float64  `json:"radius_miles" yaml:"radius_miles"`
	MaxLeads    int      `json:"max_leads" yaml:"max_leads"`
	Industries  []string `json:"industries" yaml:"industries"`
}

// Run is one execution request of the lead-generation pipeline.
type Run struct {
	ID string `json:"id"`
	RunInput
	Status    RunStatus  `json:"status"`
	Progress  Progress   `json:"progress"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Lead is one persisted candidate business attributed to a run.
type Lead struct {
	ID            string     `json:"id"`
	RunID         string     `json:"run_id"`
	Industry      string     `json:"industry"`
	BusinessName  string     `json:"business_name"`
	Address       string     `json:"address,omitempty"`
	City          string     `json:"city,omitempty"`
	State         string     `json:"state,omitempty"`
	Zip           string     `json:"zip,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Website       string     `json:"website,omitempty"`
	SourceURL     string     `json:"source_url,omitempty"`
	DistanceMiles *float64   `json:"distance_miles,omitempty"`
	Confidence    float64    `json:"confidence"`
	Notes         string     `json:"notes,omitempty"`
	ContactedAt   *time.Time `json:"contacted_at,omitempty"`
	ManualNotes   string     `json:"manual_notes,omitempty"`
	DedupeKey     string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Candidate is an in-memory lead produced by extraction or search,
// before filtering, scoring, and dedup.
type Candidate struct {
	BusinessName string
	Address      string
	City         string
	State        string
	Zip          string
	Phone        string
	Website      string
	SourceURL    string
	IsDirectory  bool

	// Set by structured search providers; nil when the location must be
	// geocoded from the address fields.
	Lat *float64
	Lng *float64
}
