package orchestrator

// InvalidRequestError reports a request that is structurally valid JSON but
// violates a domain invariant. It is raised before any backend call.
type InvalidRequestError struct {
	Message string
}

func (e *InvalidRequestError) Error() string {
	return e.Message
}
