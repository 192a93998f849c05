package domain

// VerdictKind is the tri-valued result the Validator hands back to the
// Check Scheduler for a single (profile, check) evaluation.
type VerdictKind string

const (
	VerdictSuccess        VerdictKind = "success"
	VerdictDeferred       VerdictKind = "deferred"
	VerdictTransportError VerdictKind = "transport_error"
)

// Verdict is the Validator's tagged result for one check invocation.
type Verdict struct {
	Outcome        VerdictKind
	Passed         bool
	Details        map[string]any
	DeferredWaitMs int64
	Endpoint       EndpointClass
	Private        bool
}

func VerdictOK(passed bool, details map[string]any) Verdict {
	return Verdict{Outcome: VerdictSuccess, Passed: passed, Details: details}
}

func VerdictPrivate(details map[string]any) Verdict {
	return Verdict{Outcome: VerdictSuccess, Passed: true, Private: true, Details: details}
}

func VerdictDeferredResult(endpoint EndpointClass, waitMs int64) Verdict {
	return Verdict{Outcome: VerdictDeferred, Endpoint: endpoint, DeferredWaitMs: waitMs}
}

func VerdictTransportErr(endpoint EndpointClass, message string) Verdict {
	return Verdict{Outcome: VerdictTransportError, Endpoint: endpoint, Details: map[string]any{"error": message}}
}
