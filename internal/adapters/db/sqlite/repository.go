package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dagoof/sc-buildorders/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	_ "modernc.org/sqlite"
)

type Repository struct {
	db *gorm.DB
}

// Open connects to the database at path. Writers are serialized on a single
// connection and wait on a busy database instead of failing.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        withPragmas(path),
	}, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func withPragmas(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertNodeIfAbsent(ctx context.Context, parentID uint, unitName string, index int) (domain.Node, error) {
	var out TrieNodeModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if parentID != domain.RootID {
			var count int64
			if err := tx.Model(&TrieNodeModel{}).Where("id = ?", parentID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("parent node %d: %w", parentID, domain.ErrNotFound)
			}
		}

		m := TrieNodeModel{ParentID: parentID, UnitName: unitName, StepIndex: index}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "parent_id"}, {Name: "unit_name"}, {Name: "step_index"}},
			DoNothing: true,
		}).Create(&m)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 && m.ID != 0 {
			out = m
			return nil
		}

		err := tx.Where("parent_id = ? AND unit_name = ? AND step_index = ?", parentID, unitName, index).First(&out).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrTrieInsertConflict
		}
		return err
	})
	if err != nil {
		return domain.Node{}, err
	}
	return toNode(out), nil
}

func (r *Repository) GetNode(ctx context.Context, id uint) (domain.Node, error) {
	var m TrieNodeModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return domain.Node{}, notFound(err, "node %d", id)
	}
	return toNode(m), nil
}

func (r *Repository) Ancestry(ctx context.Context, id uint) ([]domain.Node, error) {
	rows := make([]TrieNodeModel, 0)
	err := r.db.WithContext(ctx).Raw(`
WITH RECURSIVE path(id, parent_id, depth) AS (
    SELECT id, parent_id, 0 FROM trie_nodes WHERE id = ?
    UNION ALL
    SELECT n.id, n.parent_id, path.depth + 1
    FROM trie_nodes n
    JOIN path ON n.id = path.parent_id
)
SELECT n.id, n.parent_id, n.unit_name, n.step_index, n.created_at
FROM path
JOIN trie_nodes n ON n.id = path.id
ORDER BY path.depth DESC;
`, id).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("node %d: %w", id, domain.ErrNotFound)
	}

	result := make([]domain.Node, 0, len(rows))
	for _, m := range rows {
		result = append(result, toNode(m))
	}
	return result, nil
}

func (r *Repository) Children(ctx context.Context, parentID uint) ([]domain.Node, error) {
	rows := make([]TrieNodeModel, 0)
	if err := r.db.WithContext(ctx).Where("parent_id = ?", parentID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Node, 0, len(rows))
	for _, m := range rows {
		result = append(result, toNode(m))
	}
	return result, nil
}

func (r *Repository) CountNodes(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&TrieNodeModel{}).Count(&count).Error
	return count, err
}

func (r *Repository) CreateBuild(ctx context.Context, value domain.Build) (domain.Build, error) {
	m := BuildModel{Key: value.Key, Race: value.Race, TipNodeID: value.TipNodeID, BasedOnID: value.BasedOnID}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Build{}, err
	}
	return toBuild(m), nil
}

func (r *Repository) GetBuildByKey(ctx context.Context, key string) (domain.Build, error) {
	var m BuildModel
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&m).Error; err != nil {
		return domain.Build{}, notFound(err, "build %s", key)
	}
	return toBuild(m), nil
}

func (r *Repository) ListBuilds(ctx context.Context, race string, limit int) ([]domain.Build, error) {
	q := r.db.WithContext(ctx).Model(&BuildModel{})
	if strings.TrimSpace(race) != "" {
		q = q.Where("race = ?", strings.TrimSpace(race))
	}

	rows := make([]BuildModel, 0)
	if err := q.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Build, 0, len(rows))
	for _, m := range rows {
		result = append(result, toBuild(m))
	}
	return result, nil
}

func (r *Repository) UpdateBuildTip(ctx context.Context, id uint, fromTip, toTip uint) (domain.Build, error) {
	var m BuildModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&BuildModel{}).
			Where("id = ? AND tip_node_id = ?", id, fromTip).
			Updates(map[string]any{"tip_node_id": toTip, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if err := tx.First(&m, id).Error; err != nil {
			return notFound(err, "build %d", id)
		}
		if res.RowsAffected == 0 {
			return domain.ErrBuildModified
		}
		return nil
	})
	if err != nil {
		return domain.Build{}, err
	}
	return toBuild(m), nil
}

func (r *Repository) CreateBuildEvent(ctx context.Context, value domain.BuildEvent) error {
	m := BuildEventModel{BuildID: value.BuildID, Action: value.Action, NodeID: value.NodeID, UnitName: value.UnitName}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *Repository) ListBuildEvents(ctx context.Context, buildID uint, limit int) ([]domain.BuildEvent, error) {
	rows := make([]BuildEventModel, 0)
	if err := r.db.WithContext(ctx).Where("build_id = ?", buildID).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.BuildEvent, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.BuildEvent{
			ID:        m.ID,
			BuildID:   m.BuildID,
			Action:    m.Action,
			NodeID:    m.NodeID,
			UnitName:  m.UnitName,
			CreatedAt: m.CreatedAt,
		})
	}
	return result, nil
}

func toNode(m TrieNodeModel) domain.Node {
	return domain.Node{ID: m.ID, ParentID: m.ParentID, Index: m.StepIndex, UnitName: m.UnitName, CreatedAt: m.CreatedAt}
}

func toBuild(m BuildModel) domain.Build {
	return domain.Build{
		ID:        m.ID,
		Key:       m.Key,
		Race:      m.Race,
		TipNodeID: m.TipNodeID,
		BasedOnID: m.BasedOnID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf(format+": %w", append(args, domain.ErrNotFound)...)
	}
	return err
}
