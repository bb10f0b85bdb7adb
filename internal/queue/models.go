package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConverting Status = "converting"
	StatusConverted  Status = "converted"
	StatusTagging    Status = "tagging"
	StatusTagged     Status = "tagged"
	StatusOrganizing Status = "organizing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusReview     Status = "review"
)

// Kind distinguishes containers that need decoding from plain audio files
// that are mirrored into the library untouched.
type Kind string

const (
	KindConvert Kind = "convert"
	KindCopy    Kind = "copy"
)

var allStatuses = []Status{
	StatusPending,
	StatusConverting,
	StatusConverted,
	StatusTagging,
	StatusTagged,
	StatusOrganizing,
	StatusCompleted,
	StatusFailed,
	StatusReview,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusConverting: {},
	StatusTagging:    {},
	StatusOrganizing: {},
}

type statusTransition struct {
	from Status
	to   Status
}

// stageRollbackTransitions rewind interrupted in-flight items to the start
// of the stage they were in when the previous run was killed.
var stageRollbackTransitions = []statusTransition{
	{from: StatusConverting, to: StatusPending},
	{from: StatusTagging, to: StatusConverted},
	{from: StatusOrganizing, to: StatusTagged},
}

// Item represents a queue item persisted in SQLite.
type Item struct {
	ID           int64
	SourcePath   string
	RelPath      string
	Kind         Kind
	Status       Status
	Format       string
	StagedFile   string
	ArtworkFile  string
	FinalFile    string
	MetadataJSON string
	ErrorMessage string
	NeedsReview  bool
	ReviewReason string

	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats aggregates queue counts per key lifecycle states.
type Stats struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Review     int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (i Item) IsProcessing() bool {
	_, ok := processingStatuses[i.Status]
	return ok
}

// IsTerminal reports whether no further stage will pick the item up.
func (i Item) IsTerminal() bool {
	switch i.Status {
	case StatusCompleted, StatusFailed, StatusReview:
		return true
	default:
		return false
	}
}

// SetProgress updates the progress fields atomically.
func (i *Item) SetProgress(stage, message string, percent float64) {
	i.ProgressStage = stage
	i.ProgressMessage = message
	i.ProgressPercent = percent
}

// SetFailed marks the item as failed with the given error message.
func (i *Item) SetFailed(message string) {
	i.Status = StatusFailed
	i.ErrorMessage = message
	i.ProgressStage = "Failed"
	i.ProgressPercent = 0
	i.ProgressMessage = message
}

// DisplayName is the short label used in tables and log lines.
func (i Item) DisplayName() string {
	if i.RelPath != "" {
		return i.RelPath
	}
	return i.SourcePath
}
