package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrEmptySequence = errors.New("empty unit sequence")
	ErrBuildModified = errors.New("build was modified concurrently")
	// ErrTrieInsertConflict is returned by a TrieRepository when a concurrent
	// insert of the same key won the race. Callers retry the lookup.
	ErrTrieInsertConflict = errors.New("trie insert conflict")
)
