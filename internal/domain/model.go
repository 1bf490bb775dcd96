package domain

import "time"

// RootID is the ParentID of nodes that start a sequence.
const RootID uint = 0

type Node struct {
	ID        uint
	ParentID  uint
	Index     int
	UnitName  string
	CreatedAt time.Time
}

func (n Node) IsRoot() bool {
	return n.ParentID == RootID
}

type Build struct {
	ID        uint
	Key       string
	Race      string
	TipNodeID uint
	BasedOnID *uint
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	BuildActionCreate = "build.create"
	BuildActionExtend = "build.extend"
	BuildActionBranch = "build.branch"
)

type BuildEvent struct {
	ID        uint
	BuildID   uint
	Action    string
	NodeID    uint
	UnitName  string
	CreatedAt time.Time
}
