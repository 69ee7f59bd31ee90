package metadata

import "fmt"

// NotFoundError indicates a dataset or table that does not exist in the
// metadata catalog. Handlers map it to HTTP 404.
type NotFoundError struct {
	Kind string // "dataset" or "table"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}
