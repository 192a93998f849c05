package domain

// OutcomeKind tags the shape of a Dispatcher result. Replaces the
// duck-typed {success, deferred, isPrivate, ...} shapes the design notes
// (spec.md §9) call out as a smell in the source system.
type OutcomeKind string

const (
	OutcomeOK       OutcomeKind = "ok"
	OutcomeDeferred OutcomeKind = "deferred"
	OutcomeFailed   OutcomeKind = "failed"
)

// FailureKind classifies a non-retryable-by-the-caller Dispatcher failure.
type FailureKind string

const (
	FailureUpstreamOther FailureKind = "upstream_other"
)

// Outcome is the single return shape for Dispatcher.Request. Exactly one of
// the payload fields is meaningful, selected by Kind.
type Outcome struct {
	Kind OutcomeKind

	// OutcomeOK
	Body      []byte
	IsPrivate bool

	// OutcomeDeferred
	Endpoint EndpointClass
	WaitMs   int64

	// OutcomeFailed
	FailureKind FailureKind
	Message     string
}

func OK(body []byte, private bool) Outcome {
	return Outcome{Kind: OutcomeOK, Body: body, IsPrivate: private}
}

func Deferred(endpoint EndpointClass, waitMs int64) Outcome {
	return Outcome{Kind: OutcomeDeferred, Endpoint: endpoint, WaitMs: waitMs}
}

func Failed(kind FailureKind, message string) Outcome {
	return Outcome{Kind: OutcomeFailed, FailureKind: kind, Message: message}
}
