package processor

// State is the terminal state of one processing run
type State string

const (
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	// StateSkipped means the account disappeared before the run started.
	StateSkipped State = "skipped"
)

// FailureKind classifies a failed run
type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureDecrypt    FailureKind = "decrypt"
	FailureConnection FailureKind = "connection"
	FailureUnexpected FailureKind = "unexpected"
)

// Outcome summarises a processing run
type Outcome struct {
	State       State
	Kind        FailureKind
	NewMessages int
	Err         error
}

func (o Outcome) label() string {
	if o.State == StateFailed {
		return string(o.State) + "_" + string(o.Kind)
	}
	return string(o.State)
}

type messageStatus int

const (
	resultNew messageStatus = iota
	resultSkipped
	resultError
)

// messageResult is the per-message verdict of the fetch loop
type messageResult struct {
	status    messageStatus
	messageID string
	reason    string
	err       error
}

type runSummary struct {
	newCount     int
	skippedCount int
	errorCount   int
	firstErr     error
}

func summarize(results []messageResult) runSummary {
	var s runSummary
	for _, r := range results {
		switch r.status {
		case resultNew:
			s.newCount++
		case resultSkipped:
			s.skippedCount++
		case resultError:
			s.errorCount++
			if s.firstErr == nil {
				s.firstErr = r.err
			}
		}
	}
	return s
}
