package sqlite

import "time"

type TrieNodeModel struct {
	ID        uint   `gorm:"primaryKey"`
	ParentID  uint   `gorm:"not null;default:0;index:idx_trie_nodes_key,unique"`
	UnitName  string `gorm:"not null;index:idx_trie_nodes_key,unique"`
	StepIndex int    `gorm:"not null;index:idx_trie_nodes_key,unique"`
	CreatedAt time.Time
}

func (TrieNodeModel) TableName() string { return "trie_nodes" }

type BuildModel struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"not null;uniqueIndex"`
	Race      string `gorm:"not null;index"`
	TipNodeID uint   `gorm:"not null"`
	BasedOnID *uint
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BuildModel) TableName() string { return "builds" }

type BuildEventModel struct {
	ID        uint   `gorm:"primaryKey"`
	BuildID   uint   `gorm:"not null;index"`
	Action    string `gorm:"not null"`
	NodeID    uint   `gorm:"not null;default:0"`
	UnitName  string `gorm:"not null;default:''"`
	CreatedAt time.Time
}

func (BuildEventModel) TableName() string { return "build_events" }
