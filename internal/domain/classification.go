package domain

import "time"

// Proposal is one classifier decision for a single review. Label is either an
// existing registry label (IsNew false) or a candidate for a new topic.
type Proposal struct {
	Review string
	Label  string
	IsNew  bool
}

// Verdict is the novelty validator's decision on a proposed topic.
type Verdict struct {
	Approved bool
	Reason   string
}

type ClassificationRecord struct {
	RunID      string
	Product    string
	Date       string
	Review     string
	Topic      string
	Provider   string
	NewTopic   bool
	AssignedAt time.Time
}

type ProviderCall struct {
	RunID        string
	Provider     string
	Model        string
	Role         string
	OK           bool
	InputTokens  int64
	OutputTokens int64
	CalledAt     time.Time
}

type RunSummary struct {
	ID             string
	Product        string
	Date           string
	Status         string
	Reviews        int
	Assigned       int
	SkippedBatches int
	Dropped        int
	NewTopics      int
	FallbackCalls  int
	Error          string
	StartedAt      time.Time
	FinishedAt     time.Time
}

const (
	EventBatchSkipped  = "batch_skipped"
	EventReviewDropped = "review_dropped"
	EventTopicCreated  = "topic_created"
)

// RunEvent is one notable decision inside a day run: a skipped batch, a
// dropped review or a newly created topic.
type RunEvent struct {
	RunID  string
	Kind   string
	Batch  int
	Review string
	Topic  string
	Reason string
	At     time.Time
}

const (
	RunStatusRunning = "running"
	RunStatusOK      = "ok"
	RunStatusFailed  = "failed"
)
