package harvester

import (
	"fmt"

	"github.com/JakeFAU/outbreak-harvester/internal/outbreak"
)

// Outcome is the terminal status of a harvest run.
type Outcome string

// Run outcomes.
const (
	OutcomeFetchFailed  Outcome = "fetch_failed"
	OutcomeAdded        Outcome = "added"
	OutcomeNoneAdded    Outcome = "none_added"
	OutcomeCommitFailed Outcome = "commit_failed"
)

// Result summarizes one harvest run.
type Result struct {
	RunID   string
	Outcome Outcome
	Added   int
	Records []outbreak.Record
	Err     error
}

// Message renders the user-facing status line for the run.
func (r Result) Message() string {
	switch r.Outcome {
	case OutcomeFetchFailed:
		return fmt.Sprintf("Error fetching the URL: %v", r.Err)
	case OutcomeCommitFailed:
		return fmt.Sprintf("Error saving outbreaks to database: %v", r.Err)
	case OutcomeAdded:
		return fmt.Sprintf("Outbreaks updated successfully! %d new outbreak articles added.", r.Added)
	default:
		return "No new outbreak articles found."
	}
}
