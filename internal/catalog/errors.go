package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateName     = errors.New("duplicate entity name")
	ErrCyclicDependency  = errors.New("cyclic dependency")
	ErrUnknownEntity     = errors.New("unknown entity")
	ErrUnknownRace       = errors.New("unknown race")
	ErrInvalidDefinition = errors.New("invalid entity definition")
)

type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("entity %q registered twice", e.Name)
}

func (e *DuplicateNameError) Unwrap() error { return ErrDuplicateName }

// CyclicDependencyError reports the entities left unordered after a topological
// sort of one relation ("requires" or "acts_as").
type CyclicDependencyError struct {
	Relation string
	Names    []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cycle in %s relation involving %s", e.Relation, strings.Join(e.Names, ", "))
}

func (e *CyclicDependencyError) Unwrap() error { return ErrCyclicDependency }

type UnknownEntityError struct {
	Name        string
	Race        string
	Suggestions []string
}

func (e *UnknownEntityError) Error() string {
	var b strings.Builder
	if e.Race != "" {
		fmt.Fprintf(&b, "unknown %s entity %q", e.Race, e.Name)
	} else {
		fmt.Fprintf(&b, "unknown entity %q", e.Name)
	}
	if len(e.Suggestions) > 0 {
		fmt.Fprintf(&b, " (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return b.String()
}

func (e *UnknownEntityError) Unwrap() error { return ErrUnknownEntity }
