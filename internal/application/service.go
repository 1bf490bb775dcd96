package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dagoof/sc-buildorders/internal/buildorder"
	"github.com/dagoof/sc-buildorders/internal/catalog"
	"github.com/dagoof/sc-buildorders/internal/domain"
	"github.com/dagoof/sc-buildorders/internal/trie"
)

// DistinguishingOffset is the first position at which a unit can mark a build
// as distinct; earlier units are the shared opening of nearly every order.
const DistinguishingOffset = 8

var ErrInvalidInput = errors.New("invalid input")

type BuildService struct {
	catalog *catalog.Catalog
	builds  domain.BuildRepository
	trie    *trie.Trie
	logger  *slog.Logger
	newKey  func() string
}

type OrderSummary struct {
	Race      string         `json:"race"`
	UnitOrder []string       `json:"unit_order"`
	Active    []string       `json:"active"`
	Costs     map[string]int `json:"costs"`
}

type BuildRecord struct {
	Key       string    `json:"key"`
	Race      string    `json:"race"`
	TipNodeID uint      `json:"tip_node_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BuildSummary struct {
	BuildRecord
	UnitOrder []string       `json:"unit_order"`
	Active    []string       `json:"active"`
	Costs     map[string]int `json:"costs"`
}

type TechSummary struct {
	Race      string                 `json:"race"`
	Available []string               `json:"available"`
	Tree      []*buildorder.TechNode `json:"tree"`
}

// Feature is a unit that opened new tech late enough to tell build orders
// apart, with the resources spent before it.
type Feature struct {
	Index  int            `json:"index"`
	Unit   string         `json:"unit"`
	Allows []string       `json:"allows"`
	Costs  map[string]int `json:"costs"`
}

type BuildEvent struct {
	Action    string    `json:"action"`
	NodeID    uint      `json:"node_id"`
	Unit      string    `json:"unit,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewBuildService(c *catalog.Catalog, builds domain.BuildRepository, t *trie.Trie, logger *slog.Logger) *BuildService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BuildService{
		catalog: c,
		builds:  builds,
		trie:    t,
		logger:  logger,
		newKey:  func() string { return ulid.Make().String() },
	}
}

func (s *BuildService) Races() []string {
	return s.catalog.Races()
}

func (s *BuildService) Entities(race string) ([]catalog.EntityView, error) {
	r, err := s.race(race)
	if err != nil {
		return nil, err
	}
	entities := r.Entities()
	result := make([]catalog.EntityView, 0, len(entities))
	for _, e := range entities {
		result = append(result, s.catalog.View(e.ID))
	}
	return result, nil
}

func (s *BuildService) Entity(name string) (catalog.EntityView, error) {
	e, err := s.catalog.Lookup(strings.TrimSpace(name))
	if err != nil {
		return catalog.EntityView{}, err
	}
	return s.catalog.View(e.ID), nil
}

// Validate replays names from an empty state without storing anything.
func (s *BuildService) Validate(race string, names []string) (OrderSummary, error) {
	r, err := s.race(race)
	if err != nil {
		return OrderSummary{}, err
	}
	order, err := buildorder.FromNames(r, names)
	if err != nil {
		return OrderSummary{}, err
	}
	return summarizeOrder(order), nil
}

func (s *BuildService) Tech(race string, names []string) (TechSummary, error) {
	r, err := s.race(race)
	if err != nil {
		return TechSummary{}, err
	}
	order, err := buildorder.FromNames(r, names)
	if err != nil {
		return TechSummary{}, err
	}
	return summarizeTech(order), nil
}

// CreateBuild validates names and records them as a new build. Without names
// the race's default opening is used.
func (s *BuildService) CreateBuild(ctx context.Context, race string, names []string) (BuildSummary, error) {
	r, err := s.race(race)
	if err != nil {
		return BuildSummary{}, err
	}
	if len(names) == 0 {
		names = r.Seed()
	}
	if len(names) == 0 {
		return BuildSummary{}, domain.ErrEmptySequence
	}

	order, err := buildorder.FromNames(r, names)
	if err != nil {
		return BuildSummary{}, err
	}
	tip, err := s.trie.Insert(ctx, order.UnitOrder())
	if err != nil {
		return BuildSummary{}, fmt.Errorf("store build order: %w", err)
	}
	b, err := s.builds.CreateBuild(ctx, domain.Build{Key: s.newKey(), Race: r.Name, TipNodeID: tip.ID})
	if err != nil {
		return BuildSummary{}, err
	}

	s.writeEvent(ctx, b, domain.BuildActionCreate, tip)
	s.logger.InfoContext(ctx, "build created", "key", b.Key, "race", b.Race, "units", order.Len())
	return summarizeBuild(b, order), nil
}

// AddUnit appends one unit to a stored build. The tip only moves if no other
// writer moved it since the build was loaded.
func (s *BuildService) AddUnit(ctx context.Context, key, name string) (BuildSummary, error) {
	b, order, err := s.load(ctx, key)
	if err != nil {
		return BuildSummary{}, err
	}
	e, err := order.Race().Lookup(strings.TrimSpace(name))
	if err != nil {
		return BuildSummary{}, err
	}
	if _, err := order.AddEntity(e); err != nil {
		return BuildSummary{}, err
	}

	node, err := s.trie.Extend(ctx, b.TipNodeID, e.Name)
	if err != nil {
		return BuildSummary{}, fmt.Errorf("extend build %s: %w", b.Key, err)
	}
	updated, err := s.builds.UpdateBuildTip(ctx, b.ID, b.TipNodeID, node.ID)
	if err != nil {
		if errors.Is(err, domain.ErrBuildModified) {
			s.logger.WarnContext(ctx, "build tip moved concurrently", "key", b.Key, "unit", e.Name)
		}
		return BuildSummary{}, err
	}

	s.writeEvent(ctx, updated, domain.BuildActionExtend, node)
	s.logger.InfoContext(ctx, "unit added", "key", b.Key, "unit", e.Name, "index", node.Index)
	return summarizeBuild(updated, order), nil
}

// Branch starts a new build that shares the whole history of key. Both builds
// can then be extended independently.
func (s *BuildService) Branch(ctx context.Context, key string) (BuildSummary, error) {
	base, order, err := s.load(ctx, key)
	if err != nil {
		return BuildSummary{}, err
	}
	branched, err := buildorder.BasedOn(order)
	if err != nil {
		return BuildSummary{}, err
	}

	baseID := base.ID
	b, err := s.builds.CreateBuild(ctx, domain.Build{
		Key:       s.newKey(),
		Race:      base.Race,
		TipNodeID: base.TipNodeID,
		BasedOnID: &baseID,
	})
	if err != nil {
		return BuildSummary{}, err
	}

	tip, err := s.trie.Node(ctx, b.TipNodeID)
	if err != nil {
		return BuildSummary{}, err
	}
	s.writeEvent(ctx, b, domain.BuildActionBranch, tip)
	s.logger.InfoContext(ctx, "build branched", "key", b.Key, "from", base.Key)
	return summarizeBuild(b, branched), nil
}

func (s *BuildService) GetBuild(ctx context.Context, key string) (BuildSummary, error) {
	b, order, err := s.load(ctx, key)
	if err != nil {
		return BuildSummary{}, err
	}
	return summarizeBuild(b, order), nil
}

func (s *BuildService) ListBuilds(ctx context.Context, race string, limit int) ([]BuildRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if strings.TrimSpace(race) != "" {
		r, err := s.race(race)
		if err != nil {
			return nil, err
		}
		race = r.Name
	}

	builds, err := s.builds.ListBuilds(ctx, race, limit)
	if err != nil {
		return nil, err
	}
	result := make([]BuildRecord, 0, len(builds))
	for _, b := range builds {
		result = append(result, toRecord(b))
	}
	return result, nil
}

// Features lists the units at or after DistinguishingOffset that unlock other
// entities, each with the total cost of the order before it.
func (s *BuildService) Features(ctx context.Context, key string) ([]Feature, error) {
	_, order, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}

	result := make([]Feature, 0)
	spent := catalog.Costs{}
	for i, id := range order.UnitOrderIDs() {
		e := s.catalog.Entity(id)
		if allows := s.catalog.Allows(id); i >= DistinguishingOffset && len(allows) > 0 {
			result = append(result, Feature{
				Index:  i,
				Unit:   e.Name,
				Allows: s.catalog.Names(allows),
				Costs:  spent,
			})
		}
		spent = spent.Plus(e.Costs)
	}
	return result, nil
}

func (s *BuildService) BuildTech(ctx context.Context, key string) (TechSummary, error) {
	_, order, err := s.load(ctx, key)
	if err != nil {
		return TechSummary{}, err
	}
	return summarizeTech(order), nil
}

func (s *BuildService) ListEvents(ctx context.Context, key string, limit int) ([]BuildEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	b, err := s.builds.GetBuildByKey(ctx, strings.TrimSpace(key))
	if err != nil {
		return nil, err
	}
	events, err := s.builds.ListBuildEvents(ctx, b.ID, limit)
	if err != nil {
		return nil, err
	}
	result := make([]BuildEvent, 0, len(events))
	for _, e := range events {
		result = append(result, BuildEvent{Action: e.Action, NodeID: e.NodeID, Unit: e.UnitName, CreatedAt: e.CreatedAt})
	}
	return result, nil
}

// load fetches a build record and replays its path through the validator.
func (s *BuildService) load(ctx context.Context, key string) (domain.Build, *buildorder.BuildOrder, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.Build{}, nil, fmt.Errorf("%w: build key is required", ErrInvalidInput)
	}
	b, err := s.builds.GetBuildByKey(ctx, key)
	if err != nil {
		return domain.Build{}, nil, err
	}
	r, err := s.race(b.Race)
	if err != nil {
		return domain.Build{}, nil, err
	}
	names, err := s.trie.Names(ctx, b.TipNodeID)
	if err != nil {
		return domain.Build{}, nil, fmt.Errorf("load path of build %s: %w", b.Key, err)
	}
	order, err := buildorder.FromNames(r, names)
	if err != nil {
		return domain.Build{}, nil, fmt.Errorf("replay build %s: %w", b.Key, err)
	}
	return b, order, nil
}

func (s *BuildService) race(name string) (*catalog.Race, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: race is required", ErrInvalidInput)
	}
	if r, err := s.catalog.Race(name); err == nil {
		return r, nil
	}
	for _, candidate := range s.catalog.Races() {
		if strings.EqualFold(candidate, name) {
			return s.catalog.Race(candidate)
		}
	}
	return s.catalog.Race(name)
}

func (s *BuildService) writeEvent(ctx context.Context, b domain.Build, action string, node domain.Node) {
	err := s.builds.CreateBuildEvent(ctx, domain.BuildEvent{
		BuildID:  b.ID,
		Action:   action,
		NodeID:   node.ID,
		UnitName: node.UnitName,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "write build event", "key", b.Key, "action", action, "error", err)
	}
}

func summarizeOrder(order *buildorder.BuildOrder) OrderSummary {
	return OrderSummary{
		Race:      order.Race().Name,
		UnitOrder: order.UnitOrder(),
		Active:    order.Active(),
		Costs:     order.Costs(),
	}
}

func summarizeBuild(b domain.Build, order *buildorder.BuildOrder) BuildSummary {
	return BuildSummary{
		BuildRecord: toRecord(b),
		UnitOrder:   order.UnitOrder(),
		Active:      order.Active(),
		Costs:       order.Costs(),
	}
}

func summarizeTech(order *buildorder.BuildOrder) TechSummary {
	available := order.AvailableTech()
	names := make([]string, 0, len(available))
	for _, e := range available {
		names = append(names, e.Name)
	}
	return TechSummary{Race: order.Race().Name, Available: names, Tree: order.AvailableTechTree()}
}

func toRecord(b domain.Build) BuildRecord {
	return BuildRecord{Key: b.Key, Race: b.Race, TipNodeID: b.TipNodeID, CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt}
}
