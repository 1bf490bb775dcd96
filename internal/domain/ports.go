package domain

import "context"

type TrieRepository interface {
	// InsertNodeIfAbsent returns the node keyed by (parentID, unitName, index),
	// creating it when missing. Concurrent callers with the same key observe
	// the same node.
	InsertNodeIfAbsent(ctx context.Context, parentID uint, unitName string, index int) (Node, error)
	GetNode(ctx context.Context, id uint) (Node, error)
	// Ancestry returns the path from the root to id, root first.
	Ancestry(ctx context.Context, id uint) ([]Node, error)
	Children(ctx context.Context, parentID uint) ([]Node, error)
	CountNodes(ctx context.Context) (int64, error)
}

type BuildRepository interface {
	CreateBuild(ctx context.Context, value Build) (Build, error)
	GetBuildByKey(ctx context.Context, key string) (Build, error)
	ListBuilds(ctx context.Context, race string, limit int) ([]Build, error)
	// UpdateBuildTip moves the tip from fromTip to toTip and fails with
	// ErrBuildModified when the stored tip is no longer fromTip.
	UpdateBuildTip(ctx context.Context, id uint, fromTip, toTip uint) (Build, error)
	CreateBuildEvent(ctx context.Context, value BuildEvent) error
	ListBuildEvents(ctx context.Context, buildID uint, limit int) ([]BuildEvent, error)
}
