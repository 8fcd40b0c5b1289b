package contracts

import "fmt"

// ValidationError reports a structurally invalid write (bad graph,
// invalid date window, non-monotonic version). Raised at publish time,
// never at evaluation time.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError reports an unknown methodKey/versionId/insight/symbol
// reference. A typed failure, not a crash.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// NewNotFound builds a NotFoundError
func NewNotFound(resource, key string) NotFoundError {
	return NotFoundError{Resource: resource, Key: key}
}

// ImmutableMethodError reports a write targeting a builtin method or an
// already-published version's contents
type ImmutableMethodError struct {
	MethodKey string
	Message   string
}

func (e ImmutableMethodError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("method %s is immutable: %s", e.MethodKey, e.Message)
	}
	return fmt.Sprintf("method %s is immutable", e.MethodKey)
}
