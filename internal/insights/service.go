package insights

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/pkg/logger"
)

// Service owns insight lifecycle and targeting mutations. Every write
// that can move an insight's target set invalidates its cached targets;
// the next materialization rebuilds them.
type Service struct {
	store contracts.InsightStore
	cache contracts.TargetCache
	log   *logger.Logger
}

// NewService creates a new insight service
func NewService(store contracts.InsightStore, cache contracts.TargetCache, log *logger.Logger) *Service {
	return &Service{store: store, cache: cache, log: log}
}

// CreateInsightInput describes a new insight
type CreateInsightInput struct {
	Title     string
	Thesis    string
	Status    contracts.InsightStatus
	ValidFrom *time.Time
	ValidTo   *time.Time
	Tags      []string
	Meta      map[string]string
}

// Create registers a new insight. Status defaults to draft so a
// half-configured insight never leaks into valuations.
func (s *Service) Create(ctx context.Context, input CreateInsightInput) (*contracts.Insight, error) {
	if input.Title == "" {
		return nil, contracts.ValidationError{Field: "title", Message: "required"}
	}
	status := input.Status
	if status == "" {
		status = contracts.InsightStatusDraft
	}
	if err := validateStatus(status); err != nil {
		return nil, err
	}
	if input.ValidFrom != nil && input.ValidTo != nil && input.ValidFrom.After(*input.ValidTo) {
		return nil, contracts.ValidationError{Field: "valid_from", Message: "must not be after valid_to"}
	}

	now := time.Now().UTC()
	insight := contracts.Insight{
		ID:        uuid.NewString(),
		Title:     input.Title,
		Thesis:    input.Thesis,
		Status:    status,
		ValidFrom: input.ValidFrom,
		ValidTo:   input.ValidTo,
		Tags:      input.Tags,
		Meta:      input.Meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertInsight(ctx, insight); err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"insight_id": insight.ID,
		"status":     string(status),
	}).Info("Insight created")

	return &insight, nil
}

// Get returns one insight, nil-safe through NotFoundError
func (s *Service) Get(ctx context.Context, insightID string) (*contracts.Insight, error) {
	insight, err := s.store.GetInsight(ctx, insightID)
	if err != nil {
		return nil, err
	}
	if insight == nil {
		return nil, contracts.NewNotFound("insight", insightID)
	}
	return insight, nil
}

// UpdateInsightInput carries the mutable fields; nil leaves a field as is
type UpdateInsightInput struct {
	Title     *string
	Thesis    *string
	Status    *contracts.InsightStatus
	ValidFrom *time.Time
	ValidTo   *time.Time
	ClearFrom bool
	ClearTo   bool
	Tags      []string
}

// Update patches an insight. A status change moves the insight in or
// out of the active set, so the target cache is invalidated.
func (s *Service) Update(ctx context.Context, insightID string, input UpdateInsightInput) (*contracts.Insight, error) {
	insight, err := s.Get(ctx, insightID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		if *input.Title == "" {
			return nil, contracts.ValidationError{Field: "title", Message: "required"}
		}
		insight.Title = *input.Title
	}
	if input.Thesis != nil {
		insight.Thesis = *input.Thesis
	}
	if input.Status != nil {
		if err := validateStatus(*input.Status); err != nil {
			return nil, err
		}
		insight.Status = *input.Status
	}
	if input.ValidFrom != nil {
		insight.ValidFrom = input.ValidFrom
	}
	if input.ValidTo != nil {
		insight.ValidTo = input.ValidTo
	}
	if input.ClearFrom {
		insight.ValidFrom = nil
	}
	if input.ClearTo {
		insight.ValidTo = nil
	}
	if insight.ValidFrom != nil && insight.ValidTo != nil && insight.ValidFrom.After(*insight.ValidTo) {
		return nil, contracts.ValidationError{Field: "valid_from", Message: "must not be after valid_to"}
	}
	if input.Tags != nil {
		insight.Tags = input.Tags
	}
	insight.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateInsight(ctx, *insight); err != nil {
		return nil, err
	}
	s.invalidate(ctx, insightID)
	return insight, nil
}

// Delete soft-deletes: the row survives for audit, the insight drops
// out of every future valuation.
func (s *Service) Delete(ctx context.Context, insightID string) error {
	insight, err := s.Get(ctx, insightID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	insight.DeletedAt = &now
	insight.Status = contracts.InsightStatusDeleted
	insight.UpdatedAt = now

	if err := s.store.UpdateInsight(ctx, *insight); err != nil {
		return err
	}
	s.invalidate(ctx, insightID)

	s.log.WithFields(map[string]interface{}{"insight_id": insightID}).Info("Insight soft-deleted")
	return nil
}

// UpsertScopeRule adds or replaces a targeting rule
func (s *Service) UpsertScopeRule(ctx context.Context, insightID string, rule contracts.InsightScopeRule) (*contracts.InsightScopeRule, error) {
	if _, err := s.Get(ctx, insightID); err != nil {
		return nil, err
	}
	if err := validateScopeRule(rule); err != nil {
		return nil, err
	}

	rule.InsightID = insightID
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if err := s.store.UpsertScopeRule(ctx, rule); err != nil {
		return nil, err
	}
	s.invalidate(ctx, insightID)
	return &rule, nil
}

// DeleteScopeRule removes a targeting rule
func (s *Service) DeleteScopeRule(ctx context.Context, insightID, ruleID string) error {
	if err := s.store.DeleteScopeRule(ctx, insightID, ruleID); err != nil {
		return err
	}
	s.invalidate(ctx, insightID)
	return nil
}

// UpsertChannel adds or replaces an effect channel
func (s *Service) UpsertChannel(ctx context.Context, insightID string, channel contracts.InsightEffectChannel) (*contracts.InsightEffectChannel, error) {
	if _, err := s.Get(ctx, insightID); err != nil {
		return nil, err
	}
	if err := validateChannel(channel); err != nil {
		return nil, err
	}

	channel.InsightID = insightID
	if channel.ID == "" {
		channel.ID = uuid.NewString()
	}
	if err := s.store.UpsertChannel(ctx, channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

// DeleteChannel removes an effect channel and its points
func (s *Service) DeleteChannel(ctx context.Context, insightID, channelID string) error {
	return s.store.DeleteChannel(ctx, insightID, channelID)
}

// ReplacePoints swaps a channel's dated value series. Duplicate dates
// are rejected so EffectiveValueAt stays unambiguous.
func (s *Service) ReplacePoints(ctx context.Context, channelID string, points []contracts.InsightEffectPoint) error {
	seen := make(map[string]bool, len(points))
	for i := range points {
		points[i].ChannelID = channelID
		day := points[i].EffectDate.Format("2006-01-02")
		if seen[day] {
			return contracts.ValidationError{Field: "points", Message: "duplicate effect date " + day}
		}
		seen[day] = true
	}
	return s.store.ReplacePoints(ctx, channelID, points)
}

// ExcludeTarget manually unlinks a symbol from an insight
func (s *Service) ExcludeTarget(ctx context.Context, insightID, symbol string) error {
	if _, err := s.Get(ctx, insightID); err != nil {
		return err
	}
	if symbol == "" {
		return contracts.ValidationError{Field: "symbol", Message: "required"}
	}

	err := s.store.AddExclusion(ctx, contracts.InsightTargetExclusion{
		InsightID: insightID,
		Symbol:    symbol,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, insightID)
	return nil
}

// RestoreTarget lifts a manual exclusion
func (s *Service) RestoreTarget(ctx context.Context, insightID, symbol string) error {
	if err := s.store.RemoveExclusion(ctx, insightID, symbol); err != nil {
		return err
	}
	s.invalidate(ctx, insightID)
	return nil
}

// invalidate drops the cached target set; cache failures only log
func (s *Service) invalidate(ctx context.Context, insightID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, insightID); err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{
			"insight_id": insightID,
		}).Warn("Target cache invalidation failed")
	}
}

func validateStatus(status contracts.InsightStatus) error {
	switch status {
	case contracts.InsightStatusDraft, contracts.InsightStatusActive, contracts.InsightStatusArchived:
		return nil
	default:
		return contracts.ValidationError{Field: "status", Message: "must be draft, active or archived"}
	}
}

func validateScopeRule(rule contracts.InsightScopeRule) error {
	switch rule.ScopeType {
	case contracts.ScopeSymbol, contracts.ScopeTag, contracts.ScopeKind,
		contracts.ScopeAssetClass, contracts.ScopeMarket, contracts.ScopeDomain,
		contracts.ScopeWatchlist:
	default:
		return contracts.ValidationError{Field: "scope_type", Message: "unknown scope type"}
	}
	if rule.ScopeKey == "" {
		return contracts.ValidationError{Field: "scope_key", Message: "required"}
	}
	switch rule.Mode {
	case contracts.ScopeInclude, contracts.ScopeExclude:
		return nil
	default:
		return contracts.ValidationError{Field: "mode", Message: "must be include or exclude"}
	}
}

func validateChannel(channel contracts.InsightEffectChannel) error {
	if channel.MethodKey == "" {
		return contracts.ValidationError{Field: "method_key", Message: "required"}
	}
	if channel.MetricKey == "" {
		return contracts.ValidationError{Field: "metric_key", Message: "required"}
	}
	if contracts.LayerIndex(channel.Stage) < 0 {
		return contracts.ValidationError{Field: "stage", Message: "unknown stage"}
	}
	switch channel.Operator {
	case contracts.OpSet, contracts.OpAdd, contracts.OpMul, contracts.OpMin, contracts.OpMax:
		return nil
	default:
		return contracts.ValidationError{Field: "operator", Message: "unknown operator"}
	}
}
