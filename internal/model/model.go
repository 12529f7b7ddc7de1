// Package model loads per-segment ensemble artifacts and computes the
// weighted prediction for one feature row.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Model is the single contract an artifact must satisfy.
type Model interface {
	// Predict returns one scalar for one feature row.
	Predict(features map[string]any) (float64, error)
}

type artifactKey struct {
	first  string
	second string
	name   string
}

// Ensemble holds the per-pair weights and a cache of loaded artifacts. The
// working set is fixed (one artifact per weighted sub-model), so the cache
// never evicts. Single-threaded by design: only the stream callback asks
// for predictions.
type Ensemble struct {
	dir     string
	weights map[string]map[string]float64
	cache   map[artifactKey]Model
	logger  zerolog.Logger
}

// LoadEnsemble reads the weights file from dir. Artifact files load lazily
// on first use per (first, second, name).
//
// Weights format: {"FIRST_SECOND": {"modelName": weight, ...}, ...}.
func LoadEnsemble(dir, weightsFile string, logger zerolog.Logger) (*Ensemble, error) {
	path := filepath.Join(dir, weightsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ensemble weights: %w", err)
	}

	var weights map[string]map[string]float64
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, fmt.Errorf("failed to parse ensemble weights %s: %w", path, err)
	}

	return &Ensemble{
		dir:     dir,
		weights: weights,
		cache:   make(map[artifactKey]Model),
		logger:  logger.With().Str("component", "ensemble").Logger(),
	}, nil
}

// Pairs returns the station pairs the ensemble has weights for.
func (e *Ensemble) Pairs() []string {
	out := make([]string, 0, len(e.weights))
	for k := range e.weights {
		out = append(out, k)
	}
	return out
}

// PredictOne computes the normalized weighted prediction for one pair and
// one feature row. Returns nil when no weights exist for the pair (not an
// error: most of the network is untracked). Artifact load or predict
// failures are fatal for the pair and propagate.
func (e *Ensemble) PredictOne(first, second string, features map[string]any) (*float64, error) {
	wdict := e.weights[first+"_"+second]
	if len(wdict) == 0 {
		return nil, nil
	}

	weighted := 0.0
	total := 0.0
	for name, w := range wdict {
		m, err := e.load(first, second, name)
		if err != nil {
			return nil, err
		}
		pred, err := m.Predict(features)
		if err != nil {
			return nil, fmt.Errorf("%s_%s_%s predict failed: %w", first, second, name, err)
		}
		weighted += w * pred
		total += w
	}

	if total <= 0 {
		return nil, nil
	}
	weighted /= total
	return &weighted, nil
}

func (e *Ensemble) load(first, second, name string) (Model, error) {
	key := artifactKey{first: first, second: second, name: name}
	if m, ok := e.cache[key]; ok {
		return m, nil
	}

	path := filepath.Join(e.dir, fmt.Sprintf("%s_%s_%s.json", first, second, name))
	m, err := LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	e.logger.Debug().Str("artifact", path).Msg("loaded model artifact")
	e.cache[key] = m
	return m, nil
}

// Close releases models that hold resources (subprocess backends).
func (e *Ensemble) Close() {
	for key, m := range e.cache {
		if c, ok := m.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				e.logger.Warn().
					Str("artifact", fmt.Sprintf("%s_%s_%s", key.first, key.second, key.name)).
					Err(err).Msg("failed to close model")
			}
		}
	}
}

// modelSpec is the serialized form of a model.
type modelSpec struct {
	Kind string `json:"kind"`

	// linear
	Intercept    float64                       `json:"intercept"`
	Coefficients map[string]float64            `json:"coefficients"`
	Categories   map[string]map[string]float64 `json:"categories"`

	// subprocess
	Argv []string `json:"argv"`
}

// LoadArtifact reads one model artifact. The top level is either the model
// spec itself or a wrapper object whose "pipeline" member holds it; a
// wrapper without a pipeline member is an error.
func LoadArtifact(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact %s: %w", path, err)
	}

	raw := json.RawMessage(data)
	if _, bare := probe["kind"]; !bare {
		pipeline, ok := probe["pipeline"]
		if !ok {
			return nil, fmt.Errorf("model artifact missing 'pipeline' key: %s", path)
		}
		raw = pipeline
	}

	var spec modelSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse model spec %s: %w", path, err)
	}

	switch spec.Kind {
	case "linear":
		return newLinearModel(spec), nil
	case "subprocess":
		return newSubprocessModel(spec, path)
	default:
		return nil, fmt.Errorf("model artifact %s has unknown kind %q", path, spec.Kind)
	}
}
