package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
}

// Operation phase enumeration
type Phase int

const (
	LookupTitles Phase = iota
	WriteFiles
)

func (p Phase) String() string {
	switch p {
	case LookupTitles:
		return "lookup_titles"
	case WriteFiles:
		return "write_files"
	default:
		return ""
	}
}

func lookupStartedUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LookupTitles,
		Total:   total,
		Message: fmt.Sprintf("Looking up %d item(s) in the catalog...", total),
	}
}

func lookupDoneUpdate(step, total int, title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LookupTitles,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, title),
	}
}

func lookupFailedUpdate(step, total int, id string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LookupTitles,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, id, err),
	}
}

func writingUpdate(format string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteFiles,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Writing %d review(s) as %s...", count, format),
	}
}
