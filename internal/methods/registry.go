package methods

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/pkg/logger"
)

// Registry owns valuation method lifecycle: listing, creation, cloning,
// version publishing and the active-version pointer.
// ⭐ SSOT: method 쓰기 검증은 여기서만
type Registry struct {
	store        contracts.MethodStore
	knownFormula func(string) bool
	logger       *logger.Logger
}

// NewRegistry creates a new registry. knownFormula gates formula ids at
// publish time (nil disables the check, used only in narrow tests).
func NewRegistry(store contracts.MethodStore, knownFormula func(string) bool, log *logger.Logger) *Registry {
	return &Registry{
		store:        store,
		knownFormula: knownFormula,
		logger:       log,
	}
}

// ListFilter narrows List output
type ListFilter struct {
	Query           string
	IncludeArchived bool
	Instrument      *contracts.InstrumentMeta // when set, only scope-matching methods
}

// List returns methods matching the filter, ordered by creation time
// then method key for determinism.
func (r *Registry) List(ctx context.Context, filter ListFilter) ([]contracts.ValuationMethod, error) {
	all, err := r.store.ListMethods(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]contracts.ValuationMethod, 0, len(all))
	query := strings.ToLower(filter.Query)
	for _, m := range all {
		if !filter.IncludeArchived && m.Status == contracts.MethodStatusArchived {
			continue
		}
		if filter.Instrument != nil && !m.AssetScope.Matches(filter.Instrument) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(m.MethodKey), query) &&
			!strings.Contains(strings.ToLower(m.Name), query) {
			continue
		}
		result = append(result, m)
	}

	sortMethods(result)
	return result, nil
}

// Get returns a method with all of its versions
func (r *Registry) Get(ctx context.Context, methodKey string) (*contracts.ValuationMethodDetail, error) {
	method, err := r.store.GetMethod(ctx, methodKey)
	if err != nil {
		return nil, err
	}
	if method == nil {
		return nil, contracts.NewNotFound("method", methodKey)
	}

	versions, err := r.store.ListVersions(ctx, methodKey)
	if err != nil {
		return nil, err
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })

	return &contracts.ValuationMethodDetail{Method: *method, Versions: versions}, nil
}

// CreateMethodInput describes a new custom method
type CreateMethodInput struct {
	MethodKey   string
	Name        string
	Description string
	AssetScope  contracts.AssetScope
}

// CreateCustom registers a new custom (non-builtin) method with no
// versions yet. Publishing the first version makes it usable.
func (r *Registry) CreateCustom(ctx context.Context, input CreateMethodInput) (*contracts.ValuationMethodDetail, error) {
	if input.MethodKey == "" {
		return nil, contracts.ValidationError{Field: "method_key", Message: "required"}
	}
	if input.Name == "" {
		return nil, contracts.ValidationError{Field: "name", Message: "required"}
	}
	if strings.HasPrefix(input.MethodKey, "builtin:") {
		return nil, contracts.ValidationError{Field: "method_key", Message: "prefix 'builtin:' is reserved"}
	}

	existing, err := r.store.GetMethod(ctx, input.MethodKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, contracts.ValidationError{Field: "method_key", Message: "already exists"}
	}

	method := contracts.ValuationMethod{
		MethodKey:   input.MethodKey,
		Name:        input.Name,
		Description: input.Description,
		IsBuiltin:   false,
		Status:      contracts.MethodStatusActive,
		AssetScope:  input.AssetScope,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.store.InsertMethod(ctx, method); err != nil {
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"method_key": input.MethodKey,
	}).Info("Custom method created")

	return r.Get(ctx, input.MethodKey)
}

// CloneBuiltin copies a builtin method's latest version into version 1
// of a new custom method. The only way builtin behavior gets edited.
func (r *Registry) CloneBuiltin(ctx context.Context, builtinKey, newKey, name string) (*contracts.ValuationMethodDetail, error) {
	source, err := r.Get(ctx, builtinKey)
	if err != nil {
		return nil, err
	}
	if !source.Method.IsBuiltin {
		return nil, contracts.ValidationError{Field: "method_key", Message: "source method is not builtin"}
	}
	seed := source.NewestVersion()
	if seed == nil {
		return nil, contracts.ValidationError{Field: "method_key", Message: "builtin method has no versions"}
	}
	if name == "" {
		name = source.Method.Name + " (copy)"
	}

	if _, err := r.CreateCustom(ctx, CreateMethodInput{
		MethodKey:   newKey,
		Name:        name,
		Description: source.Method.Description,
		AssetScope:  source.Method.AssetScope,
	}); err != nil {
		return nil, err
	}

	version := contracts.ValuationMethodVersion{
		ID:           uuid.NewString(),
		MethodKey:    newKey,
		Version:      1,
		Nodes:        append([]contracts.ValuationMetricNode(nil), seed.Nodes...),
		ParamSchema:  copyParams(seed.ParamSchema),
		MetricSchema: seed.MetricSchema,
		InputSchema:  append([]contracts.ValuationMethodInputField(nil), seed.InputSchema...),
		PublishedAt:  time.Now().UTC(),
	}
	if err := r.store.InsertVersion(ctx, version); err != nil {
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"source": builtinKey,
		"clone":  newKey,
	}).Info("Builtin method cloned")

	return r.Get(ctx, newKey)
}

// VersionDraft is the mutable input to PublishVersion; publishing
// freezes it into an immutable version.
type VersionDraft struct {
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
	Nodes         []contracts.ValuationMetricNode
	ParamSchema   map[string]float64
	MetricSchema  contracts.MetricSchema
	InputSchema   []contracts.ValuationMethodInputField
}

// PublishVersion validates a draft and appends it as the next version.
// Builtin methods are read-only and reject publishes.
func (r *Registry) PublishVersion(ctx context.Context, methodKey string, draft VersionDraft) (*contracts.ValuationMethodDetail, error) {
	detail, err := r.Get(ctx, methodKey)
	if err != nil {
		return nil, err
	}
	if detail.Method.IsBuiltin {
		return nil, contracts.ImmutableMethodError{MethodKey: methodKey, Message: "builtin methods are read-only"}
	}

	if draft.EffectiveFrom != nil && draft.EffectiveTo != nil && draft.EffectiveFrom.After(*draft.EffectiveTo) {
		return nil, contracts.ValidationError{Field: "effective_from", Message: "must not be after effective_to"}
	}
	if err := ValidateGraph(draft.Nodes, r.knownFormula); err != nil {
		return nil, err
	}
	if err := ValidateInputSchema(draft.InputSchema); err != nil {
		return nil, err
	}

	next := 1
	if newest := detail.NewestVersion(); newest != nil {
		next = newest.Version + 1
	}

	version := contracts.ValuationMethodVersion{
		ID:            uuid.NewString(),
		MethodKey:     methodKey,
		Version:       next,
		EffectiveFrom: draft.EffectiveFrom,
		EffectiveTo:   draft.EffectiveTo,
		Nodes:         draft.Nodes,
		ParamSchema:   draft.ParamSchema,
		MetricSchema:  draft.MetricSchema,
		InputSchema:   draft.InputSchema,
		PublishedAt:   time.Now().UTC(),
	}
	if err := r.store.InsertVersion(ctx, version); err != nil {
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"method_key": methodKey,
		"version":    next,
	}).Info("Method version published")

	return r.Get(ctx, methodKey)
}

// SetActiveVersion moves the active pointer. The version must belong to
// the method.
func (r *Registry) SetActiveVersion(ctx context.Context, methodKey, versionID string) (*contracts.ValuationMethodDetail, error) {
	detail, err := r.Get(ctx, methodKey)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range detail.Versions {
		if detail.Versions[i].ID == versionID {
			found = true
			break
		}
	}
	if !found {
		return nil, contracts.NewNotFound("method version", versionID)
	}

	if err := r.store.SetActiveVersion(ctx, methodKey, versionID); err != nil {
		return nil, err
	}

	return r.Get(ctx, methodKey)
}

// UpsertInputSchema publishes a new version carrying an amended input
// schema over the newest version's graph. Published versions themselves
// never change.
func (r *Registry) UpsertInputSchema(ctx context.Context, methodKey string, fields []contracts.ValuationMethodInputField) (*contracts.ValuationMethodDetail, error) {
	detail, err := r.Get(ctx, methodKey)
	if err != nil {
		return nil, err
	}
	if detail.Method.IsBuiltin {
		return nil, contracts.ImmutableMethodError{MethodKey: methodKey, Message: "builtin methods are read-only"}
	}
	newest := detail.NewestVersion()
	if newest == nil {
		return nil, contracts.ValidationError{Field: "method_key", Message: "method has no versions to amend"}
	}

	return r.PublishVersion(ctx, methodKey, VersionDraft{
		EffectiveFrom: newest.EffectiveFrom,
		EffectiveTo:   newest.EffectiveTo,
		Nodes:         newest.Nodes,
		ParamSchema:   newest.ParamSchema,
		MetricSchema:  newest.MetricSchema,
		InputSchema:   fields,
	})
}

// Archive flips a method to archived; archived methods stop being
// offered but keep their history.
func (r *Registry) Archive(ctx context.Context, methodKey string) (*contracts.ValuationMethodDetail, error) {
	detail, err := r.Get(ctx, methodKey)
	if err != nil {
		return nil, err
	}
	if detail.Method.IsBuiltin {
		return nil, contracts.ImmutableMethodError{MethodKey: methodKey, Message: "builtin methods cannot be archived"}
	}
	if err := r.store.SetStatus(ctx, methodKey, contracts.MethodStatusArchived); err != nil {
		return nil, err
	}
	return r.Get(ctx, methodKey)
}

// ResolveForInstrument picks the method used when the caller names no
// method key: the first active, scope-matching method with at least one
// version, in creation order. Nil when nothing matches.
func (r *Registry) ResolveForInstrument(ctx context.Context, meta *contracts.InstrumentMeta) (*contracts.ValuationMethodDetail, error) {
	methods, err := r.List(ctx, ListFilter{Instrument: meta})
	if err != nil {
		return nil, err
	}

	for _, m := range methods {
		detail, err := r.Get(ctx, m.MethodKey)
		if err != nil {
			return nil, err
		}
		if detail.ActiveVersion() != nil {
			return detail, nil
		}
	}
	return nil, nil
}

func sortMethods(methods []contracts.ValuationMethod) {
	sort.Slice(methods, func(i, j int) bool {
		if !methods[i].CreatedAt.Equal(methods[j].CreatedAt) {
			return methods[i].CreatedAt.Before(methods[j].CreatedAt)
		}
		return methods[i].MethodKey < methods[j].MethodKey
	})
}

func copyParams(params map[string]float64) map[string]float64 {
	if params == nil {
		return nil
	}
	out := make(map[string]float64, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
