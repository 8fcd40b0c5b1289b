package methods

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/pkg/logger"
)

// SeedFile is the YAML shape of one builtin method definition.
// KnownFields(true) makes typos and unused fields fail immediately.
type SeedFile struct {
	Meta struct {
		MethodKey   string `yaml:"method_key" json:"method_key"`
		Name        string `yaml:"name" json:"name"`
		Description string `yaml:"description" json:"description"`
	} `yaml:"meta" json:"meta"`

	AssetScope struct {
		Kinds        []string `yaml:"kinds" json:"kinds"`
		AssetClasses []string `yaml:"asset_classes" json:"asset_classes"`
		Markets      []string `yaml:"markets" json:"markets"`
		Domains      []string `yaml:"domains" json:"domains"`
	} `yaml:"asset_scope" json:"asset_scope"`

	Params map[string]float64 `yaml:"params" json:"params"`

	Inputs []struct {
		Key             string   `yaml:"key" json:"key"`
		Label           string   `yaml:"label" json:"label"`
		Kind            string   `yaml:"kind" json:"kind"`
		Unit            string   `yaml:"unit" json:"unit"`
		Editable        bool     `yaml:"editable" json:"editable"`
		ObjectiveSource *string  `yaml:"objective_source" json:"objective_source"`
		DefaultPolicy   string   `yaml:"default_policy" json:"default_policy"`
		DefaultValue    *float64 `yaml:"default_value" json:"default_value"`
	} `yaml:"inputs" json:"inputs"`

	Nodes []struct {
		Key       string   `yaml:"key" json:"key"`
		Label     string   `yaml:"label" json:"label"`
		Layer     string   `yaml:"layer" json:"layer"`
		Unit      string   `yaml:"unit" json:"unit"`
		DependsOn []string `yaml:"depends_on" json:"depends_on"`
		Formula   string   `yaml:"formula" json:"formula"`
		Editable  bool     `yaml:"editable" json:"editable"`
	} `yaml:"nodes" json:"nodes"`

	MetricSchema struct {
		RequiredInputs []string `yaml:"required_inputs" json:"required_inputs"`
		Outputs        []string `yaml:"outputs" json:"outputs"`
	} `yaml:"metric_schema" json:"metric_schema"`
}

// LoadSeed reads one YAML seed file with strict field checking
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var seed SeedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // unknown fields fail the load
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	if seed.Meta.MethodKey == "" {
		return nil, contracts.ValidationError{Field: "meta.method_key", Message: "required"}
	}
	if seed.Meta.Name == "" {
		return nil, contracts.ValidationError{Field: "meta.name", Message: "required"}
	}

	return &seed, nil
}

// Hash generates a SHA256 over the seed's canonical JSON; used to skip
// republishing unchanged builtins. Struct (not map) marshaling keeps
// the hash reproducible.
func (s *SeedFile) Hash() (string, error) {
	jsonBytes, err := json.Marshal(s)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// Version converts the seed to a publishable draft
func (s *SeedFile) toDraft() VersionDraft {
	draft := VersionDraft{
		ParamSchema: s.Params,
		MetricSchema: contracts.MetricSchema{
			RequiredInputs: s.MetricSchema.RequiredInputs,
			Outputs:        s.MetricSchema.Outputs,
		},
	}

	for i, in := range s.Inputs {
		draft.InputSchema = append(draft.InputSchema, contracts.ValuationMethodInputField{
			Key:             in.Key,
			Label:           in.Label,
			Kind:            contracts.InputKind(in.Kind),
			Unit:            contracts.MetricUnit(in.Unit),
			Editable:        in.Editable,
			ObjectiveSource: in.ObjectiveSource,
			DefaultPolicy:   contracts.DefaultPolicy(in.DefaultPolicy),
			DefaultValue:    in.DefaultValue,
			DisplayOrder:    i + 1,
		})
	}

	for _, n := range s.Nodes {
		draft.Nodes = append(draft.Nodes, contracts.ValuationMetricNode{
			Key:       n.Key,
			Label:     n.Label,
			Layer:     contracts.MetricLayer(n.Layer),
			Unit:      contracts.MetricUnit(n.Unit),
			DependsOn: n.DependsOn,
			FormulaID: n.Formula,
			Editable:  n.Editable,
		})
	}

	return draft
}

// Seeder loads builtin method definitions at startup and upserts them
// through the method store. Builtins stay read-only for users; only a
// changed seed file publishes a new version.
type Seeder struct {
	store        contracts.MethodStore
	knownFormula func(string) bool
	logger       *logger.Logger
}

// NewSeeder creates a new seeder
func NewSeeder(store contracts.MethodStore, knownFormula func(string) bool, log *logger.Logger) *Seeder {
	return &Seeder{
		store:        store,
		knownFormula: knownFormula,
		logger:       log,
	}
}

// ApplyDir seeds every *.yaml file in the directory, sorted by name
func (s *Seeder) ApplyDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read seed dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	for _, path := range paths {
		seed, err := LoadSeed(path)
		if err != nil {
			return fmt.Errorf("load seed %s: %w", path, err)
		}
		if err := s.Apply(ctx, seed); err != nil {
			return fmt.Errorf("apply seed %s: %w", path, err)
		}
	}

	return nil
}

// Apply upserts one builtin method from a validated seed
func (s *Seeder) Apply(ctx context.Context, seed *SeedFile) error {
	draft := seed.toDraft()
	if err := ValidateGraph(draft.Nodes, s.knownFormula); err != nil {
		return err
	}
	if err := ValidateInputSchema(draft.InputSchema); err != nil {
		return err
	}

	hash, err := seed.Hash()
	if err != nil {
		return fmt.Errorf("hash seed: %w", err)
	}

	existing, err := s.store.GetMethod(ctx, seed.Meta.MethodKey)
	if err != nil {
		return err
	}

	if existing == nil {
		method := contracts.ValuationMethod{
			MethodKey:   seed.Meta.MethodKey,
			Name:        seed.Meta.Name,
			Description: seed.Meta.Description,
			IsBuiltin:   true,
			Status:      contracts.MethodStatusActive,
			AssetScope: contracts.AssetScope{
				Kinds:        seed.AssetScope.Kinds,
				AssetClasses: seed.AssetScope.AssetClasses,
				Markets:      seed.AssetScope.Markets,
				Domains:      seed.AssetScope.Domains,
			},
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.InsertMethod(ctx, method); err != nil {
			return err
		}
	}

	versions, err := s.store.ListVersions(ctx, seed.Meta.MethodKey)
	if err != nil {
		return err
	}

	next := 1
	if len(versions) > 0 {
		newest := versions[len(versions)-1]
		if versionContentHash(&newest) == contentHash(draft) {
			// Seed unchanged; nothing to publish
			return nil
		}
		next = newest.Version + 1
	}

	version := contracts.ValuationMethodVersion{
		ID:           uuid.NewString(),
		MethodKey:    seed.Meta.MethodKey,
		Version:      next,
		Nodes:        draft.Nodes,
		ParamSchema:  draft.ParamSchema,
		MetricSchema: draft.MetricSchema,
		InputSchema:  draft.InputSchema,
		PublishedAt:  time.Now().UTC(),
	}
	if err := s.store.InsertVersion(ctx, version); err != nil {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"method_key": seed.Meta.MethodKey,
		"version":    next,
		"seed_hash":  hash,
	}).Info("Builtin method seeded")

	return nil
}

// contentHash fingerprints the behavioral content of a draft
func contentHash(draft VersionDraft) string {
	payload := struct {
		Nodes        []contracts.ValuationMetricNode       `json:"nodes"`
		ParamSchema  map[string]float64                    `json:"param_schema"`
		MetricSchema contracts.MetricSchema                `json:"metric_schema"`
		InputSchema  []contracts.ValuationMethodInputField `json:"input_schema"`
	}{draft.Nodes, draft.ParamSchema, draft.MetricSchema, draft.InputSchema}

	jsonBytes, _ := json.Marshal(payload)
	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:])
}

func versionContentHash(v *contracts.ValuationMethodVersion) string {
	return contentHash(VersionDraft{
		Nodes:        v.Nodes,
		ParamSchema:  v.ParamSchema,
		MetricSchema: v.MetricSchema,
		InputSchema:  v.InputSchema,
	})
}
