package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/errors"
	"github.com/turtacn/ubi/pkg/logger"
)

// ScoreCalculator turns model predictions into a score, a band and explanations.
// ScoreCalculator 将模型预测转换为风险评分。
type ScoreCalculator interface {
	// Compute never fails. When the model cannot produce a probability the
	// neutral fallback assessment is returned (see RiskAssessment.IsFallback).
	Compute(ctx context.Context, features models.FeatureVector) *models.RiskAssessment

	// Thresholds returns the band thresholds used for scoring.
	Thresholds() BandThresholds

	// ModelVersion names the model new assessments are computed with.
	ModelVersion() string
}

// ScoreCalculatorConfig configures a ScoreCalculator.
type ScoreCalculatorConfig struct {
	Thresholds   BandThresholds
	ModelTimeout time.Duration
	NeutralScore float64
	// NeutralBand is assigned to fallback assessments regardless of Thresholds.
	NeutralBand constants.Band
}

// DefaultScoreCalculatorConfig returns the built-in configuration.
func DefaultScoreCalculatorConfig() ScoreCalculatorConfig {
	return ScoreCalculatorConfig{
		Thresholds:   DefaultBandThresholds(),
		ModelTimeout: constants.DefaultModelTimeout,
		NeutralScore: constants.DefaultNeutralScore,
		NeutralBand:  constants.DefaultNeutralBand,
	}
}

type scoreCalculator struct {
	model  RiskModel
	cfg    ScoreCalculatorConfig
	logger logger.Logger
	now    func() time.Time
}

// NewScoreCalculator creates a ScoreCalculator. model may be nil, in which case every
// assessment is the neutral fallback.
func NewScoreCalculator(model RiskModel, cfg ScoreCalculatorConfig, log logger.Logger) ScoreCalculator {
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = constants.DefaultModelTimeout
	}
	if !cfg.NeutralBand.Valid() {
		cfg.NeutralBand = constants.DefaultNeutralBand
	}
	return &scoreCalculator{
		model:  model,
		cfg:    cfg,
		logger: log.WithComponent("score_calculator"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (c *scoreCalculator) Thresholds() BandThresholds {
	return c.cfg.Thresholds
}

func (c *scoreCalculator) ModelVersion() string {
	if c.model == nil {
		return constants.FallbackModelVersion
	}
	return c.model.Version()
}

func (c *scoreCalculator) Compute(ctx context.Context, features models.FeatureVector) *models.RiskAssessment {
	if c.model == nil {
		return c.fallback(ctx, features, errors.ErrModelUnavailable(fmt.Errorf("no risk model configured")))
	}

	p, err := c.predict(ctx, c.model.PredictProbability, features)
	if err != nil {
		return c.fallback(ctx, features, err)
	}
	p = clamp(p, 0, 1)

	var notes []string
	s, err := c.predict(ctx, c.model.PredictSeverity, features)
	if err != nil {
		c.logger.Warn(ctx, "Severity prediction failed, using default severity",
			logger.String("model_version", c.model.Version()),
			logger.Err(err),
		)
		s = constants.DefaultClaimSeverity
		notes = append(notes, "Claim severity unavailable - default severity applied")
	}
	s = clamp(s, constants.MinClaimSeverity, constants.MaxClaimSeverity)

	expectedLoss := p * s
	score := ScoreFromExpectedLoss(expectedLoss)
	band := c.cfg.Thresholds.Band(score)

	explanations := Explain(features, score, band)
	explanations = append(explanations, notes...)

	return &models.RiskAssessment{
		ID:               uuid.New(),
		ScoreValue:       score,
		Band:             band,
		ClaimProbability: p,
		ClaimSeverity:    s,
		ExpectedLoss:     expectedLoss,
		Explanations:     explanations,
		Features:         features,
		ModelVersion:     c.model.Version(),
		ComputedAt:       c.now(),
	}
}

// ScoreFromExpectedLoss applies score = clamp(100 - (loss/1000)*10, 0, 100).
func ScoreFromExpectedLoss(expectedLoss float64) float64 {
	return clamp(constants.MaxScore-(expectedLoss/1000)*constants.ScorePointsPerThousand, constants.MinScore, constants.MaxScore)
}

// predict runs one model call under the configured timeout. Panics, NaN results and
// deadline expiry all surface as MODEL_UNAVAILABLE.
func (c *scoreCalculator) predict(ctx context.Context, fn func(context.Context, models.FeatureVector) (float64, error), features models.FeatureVector) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ModelTimeout)
	defer cancel()

	type result struct {
		v   float64
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("model panic: %v", r)}
			}
		}()
		v, err := fn(ctx, features)
		ch <- result{v: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, errors.ErrModelUnavailable(ctx.Err())
	case r := <-ch:
		if r.err != nil {
			if errors.IsModelUnavailable(r.err) {
				return 0, r.err
			}
			return 0, errors.ErrModelUnavailable(r.err)
		}
		if math.IsNaN(r.v) || math.IsInf(r.v, 0) {
			return 0, errors.ErrModelUnavailable(fmt.Errorf("model returned non-finite value %v", r.v))
		}
		return r.v, nil
	}
}

func (c *scoreCalculator) fallback(ctx context.Context, features models.FeatureVector, cause error) *models.RiskAssessment {
	c.logger.Warn(ctx, "Risk model unavailable, returning neutral assessment", logger.Err(cause))

	score := clamp(c.cfg.NeutralScore, constants.MinScore, constants.MaxScore)
	severity := constants.DefaultClaimSeverity
	// p is chosen so that the expected-loss formula reproduces the neutral score.
	probability := clamp((constants.MaxScore-score)*1000/constants.ScorePointsPerThousand/severity, 0, 1)
	// The only assessment whose band is not derived from its score; ModelVersion flags it.
	band := c.cfg.NeutralBand

	return &models.RiskAssessment{
		ID:               uuid.New(),
		ScoreValue:       score,
		Band:             band,
		ClaimProbability: probability,
		ClaimSeverity:    severity,
		ExpectedLoss:     probability * severity,
		Explanations: []string{
			fmt.Sprintf("Risk Score: %.1f (Band %s)", score, band),
			"Risk model unavailable - neutral default score applied",
			"Degraded scoring: this assessment does not reflect driving behavior",
		},
		Features:     features,
		ModelVersion: constants.FallbackModelVersion,
		ComputedAt:   c.now(),
	}
}

// Explain generates the explanation lines for a scored feature vector.
// The first line states score and band, the last line is the overall qualitative assessment.
func Explain(f models.FeatureVector, score float64, band constants.Band) []string {
	out := []string{fmt.Sprintf("Risk Score: %.1f (Band %s)", score, band)}

	switch {
	case f.HarshBrakeRate > 0.1:
		out = append(out, "High harsh braking rate detected")
	case f.HarshBrakeRate < 0.05:
		out = append(out, "Low harsh braking rate - good driving behavior")
	}

	switch {
	case f.HarshAccelRate > 0.1:
		out = append(out, "High harsh acceleration rate detected")
	case f.HarshAccelRate < 0.05:
		out = append(out, "Low harsh acceleration rate - smooth driving")
	}

	switch {
	case f.SpeedingRatio > 0.05:
		out = append(out, "Frequent speeding detected")
	case f.SpeedingRatio < 0.02:
		out = append(out, "Good speed compliance")
	}

	switch {
	case f.NightFraction > 0.3:
		out = append(out, "High night driving percentage")
	case f.NightFraction < 0.1:
		out = append(out, "Low night driving - safer driving pattern")
	}

	if f.PhoneDistractionProb > 0.05 {
		out = append(out, "Potential phone distraction detected")
	}
	if f.WeatherExposure > 0.1 {
		out = append(out, "Driving in adverse weather conditions")
	}

	switch {
	case score >= 80:
		out = append(out, "Excellent driving behavior - low risk profile")
	case score >= 60:
		out = append(out, "Good driving behavior with room for improvement")
	case score >= 40:
		out = append(out, "Moderate risk profile - consider safer driving practices")
	default:
		out = append(out, "High risk profile - immediate attention to driving behavior recommended")
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
