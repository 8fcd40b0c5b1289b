package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vantagefolio/valora/internal/contracts"
)

// InsightStore is an in-memory contracts.InsightReader with write
// helpers for tests
type InsightStore struct {
	mu         sync.RWMutex
	insights   map[string]contracts.Insight
	rules      map[string][]contracts.InsightScopeRule       // by insight id
	channels   map[string][]contracts.InsightEffectChannel   // by insight id
	points     map[string][]contracts.InsightEffectPoint     // by channel id
	exclusions map[string][]contracts.InsightTargetExclusion // by insight id
}

// NewInsightStore creates an empty insight store
func NewInsightStore() *InsightStore {
	return &InsightStore{
		insights:   make(map[string]contracts.Insight),
		rules:      make(map[string][]contracts.InsightScopeRule),
		channels:   make(map[string][]contracts.InsightEffectChannel),
		points:     make(map[string][]contracts.InsightEffectPoint),
		exclusions: make(map[string][]contracts.InsightTargetExclusion),
	}
}

var _ contracts.InsightStore = (*InsightStore)(nil)

func (s *InsightStore) InsertInsight(ctx context.Context, insight contracts.Insight) error {
	s.PutInsight(insight)
	return nil
}

func (s *InsightStore) UpdateInsight(ctx context.Context, insight contracts.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.insights[insight.ID]; !ok {
		return contracts.NewNotFound("insight", insight.ID)
	}
	s.insights[insight.ID] = insight
	return nil
}

func (s *InsightStore) UpsertScopeRule(ctx context.Context, rule contracts.InsightScopeRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules := s.rules[rule.InsightID]
	for i := range rules {
		if rules[i].ID == rule.ID {
			rules[i] = rule
			return nil
		}
	}
	s.rules[rule.InsightID] = append(rules, rule)
	return nil
}

func (s *InsightStore) DeleteScopeRule(ctx context.Context, insightID, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules := s.rules[insightID]
	for i := range rules {
		if rules[i].ID == ruleID {
			s.rules[insightID] = append(rules[:i], rules[i+1:]...)
			return nil
		}
	}
	return contracts.NewNotFound("scope rule", ruleID)
}

func (s *InsightStore) UpsertChannel(ctx context.Context, channel contracts.InsightEffectChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels := s.channels[channel.InsightID]
	for i := range channels {
		if channels[i].ID == channel.ID {
			channels[i] = channel
			return nil
		}
	}
	s.channels[channel.InsightID] = append(channels, channel)
	return nil
}

func (s *InsightStore) DeleteChannel(ctx context.Context, insightID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels := s.channels[insightID]
	for i := range channels {
		if channels[i].ID == channelID {
			s.channels[insightID] = append(channels[:i], channels[i+1:]...)
			delete(s.points, channelID)
			return nil
		}
	}
	return contracts.NewNotFound("effect channel", channelID)
}

func (s *InsightStore) ReplacePoints(ctx context.Context, channelID string, points []contracts.InsightEffectPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.points[channelID] = append([]contracts.InsightEffectPoint(nil), points...)
	return nil
}

func (s *InsightStore) AddExclusion(ctx context.Context, exclusion contracts.InsightTargetExclusion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ex := range s.exclusions[exclusion.InsightID] {
		if ex.Symbol == exclusion.Symbol {
			return nil
		}
	}
	s.exclusions[exclusion.InsightID] = append(s.exclusions[exclusion.InsightID], exclusion)
	return nil
}

func (s *InsightStore) RemoveExclusion(ctx context.Context, insightID, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exclusions := s.exclusions[insightID]
	for i := range exclusions {
		if exclusions[i].Symbol == symbol {
			s.exclusions[insightID] = append(exclusions[:i], exclusions[i+1:]...)
			return nil
		}
	}
	return nil
}

// PutInsight registers an insight
func (s *InsightStore) PutInsight(insight contracts.Insight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insights[insight.ID] = insight
}

// PutRule registers a scope rule
func (s *InsightStore) PutRule(rule contracts.InsightScopeRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.InsightID] = append(s.rules[rule.InsightID], rule)
}

// PutChannel registers an effect channel
func (s *InsightStore) PutChannel(channel contracts.InsightEffectChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channel.InsightID] = append(s.channels[channel.InsightID], channel)
}

// PutPoint registers an effect point
func (s *InsightStore) PutPoint(point contracts.InsightEffectPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[point.ChannelID] = append(s.points[point.ChannelID], point)
}

// PutExclusion registers a manual target exclusion
func (s *InsightStore) PutExclusion(exclusion contracts.InsightTargetExclusion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exclusions[exclusion.InsightID] = append(s.exclusions[exclusion.InsightID], exclusion)
}

func (s *InsightStore) ListActiveInsights(ctx context.Context, asOf time.Time) ([]contracts.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.Insight
	for _, i := range s.insights {
		if i.IsActiveOn(asOf) {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InsightStore) GetInsight(ctx context.Context, insightID string) (*contracts.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.insights[insightID]
	if !ok || i.DeletedAt != nil {
		return nil, nil
	}
	return &i, nil
}

func (s *InsightStore) ListScopeRules(ctx context.Context, insightID string) ([]contracts.InsightScopeRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contracts.InsightScopeRule(nil), s.rules[insightID]...), nil
}

func (s *InsightStore) ListExclusions(ctx context.Context, insightID string) ([]contracts.InsightTargetExclusion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contracts.InsightTargetExclusion(nil), s.exclusions[insightID]...), nil
}

func (s *InsightStore) ListChannels(ctx context.Context, insightID string) ([]contracts.InsightEffectChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contracts.InsightEffectChannel(nil), s.channels[insightID]...), nil
}

func (s *InsightStore) ListPoints(ctx context.Context, channelID string) ([]contracts.InsightEffectPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contracts.InsightEffectPoint(nil), s.points[channelID]...), nil
}

// TargetCache is an in-memory contracts.TargetCache
type TargetCache struct {
	mu      sync.RWMutex
	entries map[string][]contracts.InsightMaterializedTarget
}

// NewTargetCache creates an empty target cache
func NewTargetCache() *TargetCache {
	return &TargetCache{entries: make(map[string][]contracts.InsightMaterializedTarget)}
}

var _ contracts.TargetCache = (*TargetCache)(nil)

func (c *TargetCache) Get(ctx context.Context, insightID string) ([]contracts.InsightMaterializedTarget, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	targets, ok := c.entries[insightID]
	if !ok {
		return nil, false, nil
	}
	return append([]contracts.InsightMaterializedTarget(nil), targets...), true, nil
}

func (c *TargetCache) Set(ctx context.Context, insightID string, targets []contracts.InsightMaterializedTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[insightID] = append([]contracts.InsightMaterializedTarget(nil), targets...)
	return nil
}

func (c *TargetCache) Invalidate(ctx context.Context, insightID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, insightID)
	return nil
}
