// Package profile keeps the signed-in user's display photo and name consistent across
// every consumer in the process. A Service owns the cache, the listener registry and
// the remote fetcher; consumers Mount a Hook on it.
package profile

// Snapshot is the latest known display identity. An empty field means absent.
type Snapshot struct {
	Photo string `json:"photo"`
	Name  string `json:"name"`
}

// IsEmpty reports whether neither field is set.
func (s Snapshot) IsEmpty() bool {
	return s.Photo == "" && s.Name == ""
}

// Listener receives every published snapshot.
type Listener func(Snapshot)

// Profile is the adapter output for a remote profile body. The Has flags separate a
// missing field from an empty one.
type Profile struct {
	Photo    string
	Name     string
	HasPhoto bool
	HasName  bool
}

// Outcome tells whether an operation changed the published snapshot.
type Outcome string

const (
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// Result is returned by every synchronizer operation. Err is informational: failures
// are already logged and counted, and the snapshot keeps its previous value. An
// updated result may still carry an error when only the persistent write failed.
type Result struct {
	Outcome Outcome
	Err     error
}

func updated(err error) Result {
	return Result{Outcome: OutcomeUpdated, Err: err}
}

func unchanged(err error) Result {
	return Result{Outcome: OutcomeUnchanged, Err: err}
}

// Updated is shorthand for r.Outcome == OutcomeUpdated.
func (r Result) Updated() bool {
	return r.Outcome == OutcomeUpdated
}
