package domain

// Summary aggregates the outcome of one dispatcher invocation.
type Summary struct {
	Scanned        int      `json:"scanned"`
	Claimed        int      `json:"claimed"`
	Sent           int      `json:"sent"`
	RetryScheduled int      `json:"retryScheduled"`
	Failed         int      `json:"failed"`
	Errors         []string `json:"errors"`
}

func NewSummary() Summary {
	return Summary{Errors: []string{}}
}
