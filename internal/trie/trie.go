// Package trie stores build orders as paths in a shared prefix tree. Two
// orders that agree on their first k units share the same k nodes.
package trie

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dagoof/sc-buildorders/internal/domain"
)

// StartIndex is the index of the first unit of every sequence.
const StartIndex = 0

const maxInsertAttempts = 5

type Trie struct {
	repo   domain.TrieRepository
	logger *slog.Logger
}

func New(repo domain.TrieRepository, logger *slog.Logger) *Trie {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trie{repo: repo, logger: logger}
}

// Extend returns the child of tip for unitName, creating it when no earlier
// path has used it. A tip of domain.RootID starts a new sequence.
func (t *Trie) Extend(ctx context.Context, tip uint, unitName string) (domain.Node, error) {
	index := StartIndex
	if tip != domain.RootID {
		ancestry, err := t.repo.Ancestry(ctx, tip)
		if err != nil {
			return domain.Node{}, fmt.Errorf("load ancestry of node %d: %w", tip, err)
		}
		index = nextIndex(ancestry)
	}

	for attempt := 1; ; attempt++ {
		node, err := t.repo.InsertNodeIfAbsent(ctx, tip, unitName, index)
		if err == nil {
			return node, nil
		}
		if !errors.Is(err, domain.ErrTrieInsertConflict) {
			return domain.Node{}, fmt.Errorf("insert %q after node %d: %w", unitName, tip, err)
		}
		if attempt == maxInsertAttempts {
			return domain.Node{}, fmt.Errorf("insert %q after node %d: still conflicting after %d attempts", unitName, tip, attempt)
		}
		t.logger.DebugContext(ctx, "trie insert conflict, retrying",
			"parent_id", tip, "unit", unitName, "index", index, "attempt", attempt)
	}
}

// Insert stores names as one path from the root and returns the last node.
func (t *Trie) Insert(ctx context.Context, names []string) (domain.Node, error) {
	if len(names) == 0 {
		return domain.Node{}, domain.ErrEmptySequence
	}
	var node domain.Node
	tip := domain.RootID
	for _, name := range names {
		var err error
		if node, err = t.Extend(ctx, tip, name); err != nil {
			return domain.Node{}, err
		}
		tip = node.ID
	}
	return node, nil
}

// FullAncestry returns the nodes from the root down to id, inclusive.
func (t *Trie) FullAncestry(ctx context.Context, id uint) ([]domain.Node, error) {
	if id == domain.RootID {
		return nil, nil
	}
	return t.repo.Ancestry(ctx, id)
}

// Names reconstructs the unit sequence that ends at id.
func (t *Trie) Names(ctx context.Context, id uint) ([]string, error) {
	path, err := t.FullAncestry(ctx, id)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(path))
	for i, n := range path {
		names[i] = n.UnitName
	}
	return names, nil
}

func (t *Trie) Node(ctx context.Context, id uint) (domain.Node, error) {
	return t.repo.GetNode(ctx, id)
}

func (t *Trie) Children(ctx context.Context, id uint) ([]domain.Node, error) {
	return t.repo.Children(ctx, id)
}

func (t *Trie) Size(ctx context.Context) (int64, error) {
	return t.repo.CountNodes(ctx)
}

func nextIndex(ancestry []domain.Node) int {
	next := StartIndex
	for _, n := range ancestry {
		if n.Index+1 > next {
			next = n.Index + 1
		}
	}
	return next
}
