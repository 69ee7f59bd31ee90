package relgraph

import "fmt"

// NoRelationshipError reports a count-by target that is not reachable from
// the base table through owned foreign keys. Handlers map it to HTTP 400.
type NoRelationshipError struct {
	Base   string
	Target string
}

func (e *NoRelationshipError) Error() string {
	if e.Base == e.Target {
		return fmt.Sprintf("cannot count distinct %q from itself: count-by target must be a different table", e.Target)
	}
	return fmt.Sprintf("no foreign-key chain connects %q to %q: the count-by target must be reachable by following %s's foreign keys", e.Base, e.Target, e.Base)
}
