package marketdata

import (
	"context"
	"time"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/internal/methods"
	"github.com/vantagefolio/valora/pkg/logger"
)

// OverrideService guards override writes with the method's input
// schema: only subjective, editable inputs of the active version accept
// a user value.
type OverrideService struct {
	store    contracts.OverrideStore
	registry *methods.Registry
	log      *logger.Logger
}

// NewOverrideService creates a new override service
func NewOverrideService(store contracts.OverrideStore, registry *methods.Registry, log *logger.Logger) *OverrideService {
	return &OverrideService{store: store, registry: registry, log: log}
}

// List returns a symbol's overrides under one method
func (s *OverrideService) List(ctx context.Context, symbol, methodKey string) ([]contracts.ValuationSubjectiveOverride, error) {
	return s.store.List(ctx, symbol, methodKey)
}

// Set validates and writes one override
func (s *OverrideService) Set(ctx context.Context, symbol, methodKey, inputKey string, value float64) (*contracts.ValuationSubjectiveOverride, error) {
	if symbol == "" {
		return nil, contracts.ValidationError{Field: "symbol", Message: "required"}
	}

	field, err := s.lookupField(ctx, methodKey, inputKey)
	if err != nil {
		return nil, err
	}
	if field.Kind != contracts.InputSubjective {
		return nil, contracts.ValidationError{Field: "input_key", Message: "only subjective inputs can be overridden"}
	}
	if !field.Editable {
		return nil, contracts.ValidationError{Field: "input_key", Message: "input is not editable"}
	}

	override := contracts.ValuationSubjectiveOverride{
		Symbol:    symbol,
		MethodKey: methodKey,
		InputKey:  inputKey,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.Upsert(ctx, override); err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"symbol":     symbol,
		"method_key": methodKey,
		"input_key":  inputKey,
	}).Info("Override set")

	return &override, nil
}

// Clear removes one override so the default cascade takes over again
func (s *OverrideService) Clear(ctx context.Context, symbol, methodKey, inputKey string) error {
	return s.store.Delete(ctx, symbol, methodKey, inputKey)
}

func (s *OverrideService) lookupField(ctx context.Context, methodKey, inputKey string) (*contracts.ValuationMethodInputField, error) {
	detail, err := s.registry.Get(ctx, methodKey)
	if err != nil {
		return nil, err
	}
	version := detail.ActiveVersion()
	if version == nil {
		return nil, contracts.ValidationError{Field: "method_key", Message: "method has no published versions"}
	}
	field, ok := version.InputField(inputKey)
	if !ok {
		return nil, contracts.NewNotFound("input", inputKey)
	}
	return field, nil
}
