package pipeline

import "fmt"

// IngestionError reports that the incident document could not be obtained
// or parsed. It is the only error FetchIncidents returns.
type IngestionError struct {
	Date string
	URL  string
	Err  error
}

// Error implements error.
func (e *IngestionError) Error() string {
	return fmt.Sprintf("pipeline: fetch incidents for %s: %v", e.Date, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }
