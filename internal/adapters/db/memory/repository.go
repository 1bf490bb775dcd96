// Package memory keeps the trie and build records in process memory. It backs
// the server when no database path is configured and the service tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dagoof/sc-buildorders/internal/domain"
)

type nodeKey struct {
	parentID uint
	unitName string
	index    int
}

type Repository struct {
	mu sync.RWMutex

	nodes  []domain.Node // node ID n lives at nodes[n-1]
	byKey  map[nodeKey]uint
	builds []domain.Build
	byRef  map[string]uint
	events []domain.BuildEvent

	now func() time.Time
}

func NewRepository() *Repository {
	return &Repository{
		byKey: make(map[nodeKey]uint),
		byRef: make(map[string]uint),
		now:   time.Now,
	}
}

func (r *Repository) InsertNodeIfAbsent(ctx context.Context, parentID uint, unitName string, index int) (domain.Node, error) {
	if err := ctx.Err(); err != nil {
		return domain.Node{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if parentID != domain.RootID {
		if _, ok := r.node(parentID); !ok {
			return domain.Node{}, fmt.Errorf("parent node %d: %w", parentID, domain.ErrNotFound)
		}
	}
	key := nodeKey{parentID: parentID, unitName: unitName, index: index}
	if id, ok := r.byKey[key]; ok {
		return r.nodes[id-1], nil
	}

	n := domain.Node{
		ID:        uint(len(r.nodes) + 1),
		ParentID:  parentID,
		Index:     index,
		UnitName:  unitName,
		CreatedAt: r.now(),
	}
	r.nodes = append(r.nodes, n)
	r.byKey[key] = n.ID
	return n, nil
}

func (r *Repository) GetNode(ctx context.Context, id uint) (domain.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.node(id)
	if !ok {
		return domain.Node{}, fmt.Errorf("node %d: %w", id, domain.ErrNotFound)
	}
	return n, nil
}

func (r *Repository) Ancestry(ctx context.Context, id uint) ([]domain.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var path []domain.Node
	for cur := id; cur != domain.RootID; {
		n, ok := r.node(cur)
		if !ok {
			return nil, fmt.Errorf("node %d: %w", cur, domain.ErrNotFound)
		}
		path = append(path, n)
		cur = n.ParentID
	}
	slices.Reverse(path)
	return path, nil
}

func (r *Repository) Children(ctx context.Context, parentID uint) ([]domain.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Node, 0)
	for _, n := range r.nodes {
		if n.ParentID == parentID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *Repository) CountNodes(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.nodes)), nil
}

func (r *Repository) node(id uint) (domain.Node, bool) {
	if id == 0 || int(id) > len(r.nodes) {
		return domain.Node{}, false
	}
	return r.nodes[id-1], true
}

func (r *Repository) CreateBuild(ctx context.Context, value domain.Build) (domain.Build, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byRef[value.Key]; ok {
		return domain.Build{}, fmt.Errorf("build key %s already exists", value.Key)
	}
	now := r.now()
	value.ID = uint(len(r.builds) + 1)
	value.CreatedAt = now
	value.UpdatedAt = now
	r.builds = append(r.builds, value)
	r.byRef[value.Key] = value.ID
	return value, nil
}

func (r *Repository) GetBuildByKey(ctx context.Context, key string) (domain.Build, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byRef[key]
	if !ok {
		return domain.Build{}, fmt.Errorf("build %s: %w", key, domain.ErrNotFound)
	}
	return r.builds[id-1], nil
}

func (r *Repository) ListBuilds(ctx context.Context, race string, limit int) ([]domain.Build, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Build, 0)
	for i := len(r.builds) - 1; i >= 0 && len(out) < limit; i-- {
		if race != "" && r.builds[i].Race != race {
			continue
		}
		out = append(out, r.builds[i])
	}
	return out, nil
}

func (r *Repository) UpdateBuildTip(ctx context.Context, id uint, fromTip, toTip uint) (domain.Build, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == 0 || int(id) > len(r.builds) {
		return domain.Build{}, fmt.Errorf("build %d: %w", id, domain.ErrNotFound)
	}
	b := &r.builds[id-1]
	if b.TipNodeID != fromTip {
		return domain.Build{}, domain.ErrBuildModified
	}
	b.TipNodeID = toTip
	b.UpdatedAt = r.now()
	return *b, nil
}

func (r *Repository) CreateBuildEvent(ctx context.Context, value domain.BuildEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	value.ID = uint(len(r.events) + 1)
	value.CreatedAt = r.now()
	r.events = append(r.events, value)
	return nil
}

func (r *Repository) ListBuildEvents(ctx context.Context, buildID uint, limit int) ([]domain.BuildEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.BuildEvent, 0)
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if r.events[i].BuildID == buildID {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}
