// Package model provides the RiskModel implementations: an in-process linear model
// loaded from a weights file and a gRPC client for a remote model server.
package model

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/pkg/errors"
)

// Scaler standardizes a feature as (x - mean) / scale. Features absent from the maps pass through unchanged.
type Scaler struct {
	Mean  map[string]float64 `json:"mean"`
	Scale map[string]float64 `json:"scale"`
}

func (s Scaler) apply(name string, x float64) float64 {
	x -= s.Mean[name]
	if sc, ok := s.Scale[name]; ok && sc != 0 {
		x /= sc
	}
	return x
}

// LinearHead is one linear predictor over the scaled features.
type LinearHead struct {
	Intercept float64            `json:"intercept"`
	Weights   map[string]float64 `json:"weights"`
	Scaler    Scaler             `json:"scaler"`
}

func (h LinearHead) eval(values map[string]float64) float64 {
	z := h.Intercept
	for name, w := range h.Weights {
		// missing features count as 0 before scaling
		z += w * h.Scaler.apply(name, values[name])
	}
	return z
}

// Weights is the on-disk format of a linear risk model.
type Weights struct {
	Version     string     `json:"version"`
	Probability LinearHead `json:"probability"` // logistic
	Severity    LinearHead `json:"severity"`    // identity link, currency units
}

// LinearModel is a logistic claim-probability model paired with a linear severity model.
// It is immutable after construction and safe for concurrent use.
type LinearModel struct {
	w Weights
}

// NewLinearModel validates w and builds a model from it.
func NewLinearModel(w Weights) (*LinearModel, error) {
	if w.Version == "" {
		return nil, errors.ErrInvalidInput("model weights have no version")
	}
	if len(w.Probability.Weights) == 0 {
		return nil, errors.ErrInvalidInput("model weights have no probability coefficients")
	}
	for _, head := range []LinearHead{w.Probability, w.Severity} {
		for name, v := range head.Weights {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.ErrInvalidInput("weight %q is not finite", name)
			}
		}
	}
	return &LinearModel{w: w}, nil
}

// LoadLinearModel reads a weights file. versionOverride, when set, replaces the file's version.
func LoadLinearModel(path, versionOverride string) (*LinearModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model weights %s: %w", path, err)
	}
	defer f.Close()
	return ReadLinearModel(f, versionOverride)
}

// ReadLinearModel decodes weights from r.
func ReadLinearModel(r io.Reader, versionOverride string) (*LinearModel, error) {
	var w Weights
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "malformed model weights")
	}
	if versionOverride != "" {
		w.Version = versionOverride
	}
	return NewLinearModel(w)
}

func (m *LinearModel) PredictProbability(_ context.Context, features models.FeatureVector) (float64, error) {
	z := m.w.Probability.eval(features.Values())
	return 1 / (1 + math.Exp(-z)), nil
}

func (m *LinearModel) PredictSeverity(_ context.Context, features models.FeatureVector) (float64, error) {
	if len(m.w.Severity.Weights) == 0 && m.w.Severity.Intercept == 0 {
		return 0, errors.ErrModelUnavailable(fmt.Errorf("model %s has no severity head", m.w.Version))
	}
	return m.w.Severity.eval(features.Values()), nil
}

func (m *LinearModel) Version() string {
	return m.w.Version
}
