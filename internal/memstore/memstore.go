// Package memstore provides in-memory implementations of the contracts
// store interfaces. They back unit tests and local experimentation;
// production wiring uses the pgx repositories.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vantagefolio/valora/internal/contracts"
)

// MethodStore is an in-memory contracts.MethodStore
type MethodStore struct {
	mu       sync.RWMutex
	methods  map[string]contracts.ValuationMethod
	versions map[string][]contracts.ValuationMethodVersion
}

// NewMethodStore creates an empty method store
func NewMethodStore() *MethodStore {
	return &MethodStore{
		methods:  make(map[string]contracts.ValuationMethod),
		versions: make(map[string][]contracts.ValuationMethodVersion),
	}
}

var _ contracts.MethodStore = (*MethodStore)(nil)

func (s *MethodStore) ListMethods(ctx context.Context) ([]contracts.ValuationMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contracts.ValuationMethod, 0, len(s.methods))
	for _, m := range s.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].MethodKey < out[j].MethodKey
	})
	return out, nil
}

func (s *MethodStore) GetMethod(ctx context.Context, methodKey string) (*contracts.ValuationMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.methods[methodKey]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MethodStore) ListVersions(ctx context.Context, methodKey string) ([]contracts.ValuationMethodVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]contracts.ValuationMethodVersion(nil), s.versions[methodKey]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *MethodStore) InsertMethod(ctx context.Context, method contracts.ValuationMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.methods[method.MethodKey] = method
	return nil
}

func (s *MethodStore) InsertVersion(ctx context.Context, version contracts.ValuationMethodVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.versions[version.MethodKey] = append(s.versions[version.MethodKey], version)
	return nil
}

func (s *MethodStore) SetActiveVersion(ctx context.Context, methodKey, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.methods[methodKey]
	if !ok {
		return contracts.NewNotFound("method", methodKey)
	}
	m.ActiveVersionID = &versionID
	s.methods[methodKey] = m
	return nil
}

func (s *MethodStore) SetStatus(ctx context.Context, methodKey string, status contracts.MethodStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.methods[methodKey]
	if !ok {
		return contracts.NewNotFound("method", methodKey)
	}
	m.Status = status
	s.methods[methodKey] = m
	return nil
}

// MetadataStore is an in-memory contracts.MetadataProvider
type MetadataStore struct {
	mu    sync.RWMutex
	metas map[string]contracts.InstrumentMeta
}

// NewMetadataStore creates an empty metadata store
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{metas: make(map[string]contracts.InstrumentMeta)}
}

var _ contracts.MetadataProvider = (*MetadataStore)(nil)

// Put registers an instrument
func (s *MetadataStore) Put(meta contracts.InstrumentMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metas[meta.Symbol] = meta
}

func (s *MetadataStore) GetInstrument(ctx context.Context, symbol string) (*contracts.InstrumentMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.metas[symbol]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MetadataStore) ListSymbols(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.metas))
	for sym := range s.metas {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}

// SnapshotStore is an in-memory contracts.SnapshotStore
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots []contracts.ValuationObjectiveMetricSnapshot
}

// NewSnapshotStore creates an empty snapshot store
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

var _ contracts.SnapshotStore = (*SnapshotStore)(nil)

// Put adds a snapshot
func (s *SnapshotStore) Put(snap contracts.ValuationObjectiveMetricSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
}

func (s *SnapshotStore) Get(ctx context.Context, symbol, methodKey, metricKey string, asOf time.Time) (*contracts.ValuationObjectiveMetricSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.snapshots {
		snap := s.snapshots[i]
		if snap.Symbol == symbol && snap.MethodKey == methodKey &&
			snap.MetricKey == metricKey && snap.AsOfDate.Equal(asOf) {
			return &snap, nil
		}
	}
	return nil, nil
}

func (s *SnapshotStore) Latest(ctx context.Context, symbol, methodKey, metricKey string, asOf time.Time) (*contracts.ValuationObjectiveMetricSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *contracts.ValuationObjectiveMetricSnapshot
	for i := range s.snapshots {
		snap := s.snapshots[i]
		if snap.Symbol != symbol || snap.MethodKey != methodKey || snap.MetricKey != metricKey {
			continue
		}
		if snap.AsOfDate.After(asOf) {
			continue
		}
		if best == nil || snap.AsOfDate.After(best.AsOfDate) {
			best = &snap
		}
	}
	return best, nil
}

// OverrideStore is an in-memory contracts.OverrideStore
type OverrideStore struct {
	mu        sync.RWMutex
	overrides map[[3]string]contracts.ValuationSubjectiveOverride
}

// NewOverrideStore creates an empty override store
func NewOverrideStore() *OverrideStore {
	return &OverrideStore{overrides: make(map[[3]string]contracts.ValuationSubjectiveOverride)}
}

var _ contracts.OverrideStore = (*OverrideStore)(nil)

func (s *OverrideStore) Get(ctx context.Context, symbol, methodKey, inputKey string) (*contracts.ValuationSubjectiveOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.overrides[[3]string{symbol, methodKey, inputKey}]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *OverrideStore) List(ctx context.Context, symbol, methodKey string) ([]contracts.ValuationSubjectiveOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.ValuationSubjectiveOverride
	for _, o := range s.overrides {
		if o.Symbol == symbol && o.MethodKey == methodKey {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InputKey < out[j].InputKey })
	return out, nil
}

func (s *OverrideStore) Upsert(ctx context.Context, override contracts.ValuationSubjectiveOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.overrides[[3]string{override.Symbol, override.MethodKey, override.InputKey}] = override
	return nil
}

func (s *OverrideStore) Delete(ctx context.Context, symbol, methodKey, inputKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.overrides, [3]string{symbol, methodKey, inputKey})
	return nil
}

// DefaultStore is an in-memory contracts.DefaultStore
type DefaultStore struct {
	mu       sync.RWMutex
	defaults []contracts.ValuationSubjectiveDefault
}

// NewDefaultStore creates an empty default store
func NewDefaultStore() *DefaultStore {
	return &DefaultStore{}
}

var _ contracts.DefaultStore = (*DefaultStore)(nil)

// Put adds a default
func (s *DefaultStore) Put(def contracts.ValuationSubjectiveDefault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = append(s.defaults, def)
}

func (s *DefaultStore) List(ctx context.Context, methodKey, inputKey string) ([]contracts.ValuationSubjectiveDefault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.ValuationSubjectiveDefault
	for _, d := range s.defaults {
		if d.MethodKey == methodKey && d.InputKey == inputKey {
			out = append(out, d)
		}
	}
	return out, nil
}

// AggregateStore is an in-memory contracts.AggregateProvider fed with
// precomputed medians
type AggregateStore struct {
	mu       sync.RWMutex
	industry map[[3]string]float64
	market   map[[3]string]float64
	global   map[[2]string]float64
}

// NewAggregateStore creates an empty aggregate store
func NewAggregateStore() *AggregateStore {
	return &AggregateStore{
		industry: make(map[[3]string]float64),
		market:   make(map[[3]string]float64),
		global:   make(map[[2]string]float64),
	}
}

var _ contracts.AggregateProvider = (*AggregateStore)(nil)

// PutIndustry seeds an industry median
func (s *AggregateStore) PutIndustry(methodKey, inputKey, industryTag string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.industry[[3]string{methodKey, inputKey, industryTag}] = value
}

// PutMarket seeds a market median
func (s *AggregateStore) PutMarket(methodKey, inputKey, market string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.market[[3]string{methodKey, inputKey, market}] = value
}

// PutGlobal seeds a global median
func (s *AggregateStore) PutGlobal(methodKey, inputKey string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global[[2]string{methodKey, inputKey}] = value
}

func (s *AggregateStore) IndustryMedian(ctx context.Context, methodKey, inputKey, industryTag string) (*float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.industry[[3]string{methodKey, inputKey, industryTag}]; ok {
		return &v, nil
	}
	return nil, nil
}

func (s *AggregateStore) MarketMedian(ctx context.Context, methodKey, inputKey, market string) (*float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.market[[3]string{methodKey, inputKey, market}]; ok {
		return &v, nil
	}
	return nil, nil
}

func (s *AggregateStore) GlobalMedian(ctx context.Context, methodKey, inputKey string) (*float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.global[[2]string{methodKey, inputKey}]; ok {
		return &v, nil
	}
	return nil, nil
}
