package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRecord       = errors.New("Invalid catalogue record")
	ErrUnresolvedHierarchy = errors.New("Unresolved variable hierarchy")
)

// UnresolvedHierarchyError names the record that stopped a table from resolving.
// It matches ErrUnresolvedHierarchy under errors.Is.
type UnresolvedHierarchyError struct {
	TableID  string
	RecordID string
	Segments []string
	Reason   string
}

func (e *UnresolvedHierarchyError) Error() string {
	return fmt.Sprintf("%v: table %v, variable %v (%v): %v", ErrUnresolvedHierarchy, e.TableID, e.RecordID, strings.Join(e.Segments, "!!"), e.Reason)
}

func (e *UnresolvedHierarchyError) Is(target error) bool {
	return target == ErrUnresolvedHierarchy
}
