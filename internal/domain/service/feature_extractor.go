package service

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/internal/domain/repository"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/errors"
)

// FeatureExtractor turns trip records into fully populated feature vectors.
// FeatureExtractor 将行程记录转换为特征向量。
type FeatureExtractor interface {
	// ExtractTripFeatures never fails; missing or non-finite inputs become 0.
	ExtractTripFeatures(trip *models.Trip) models.FeatureVector

	// ExtractDailyFeatures aggregates the user's trips that start within the UTC day containing date.
	// A day without trips yields NeutralDailyFeatures. Only repository failures are returned.
	ExtractDailyFeatures(ctx context.Context, userID uuid.UUID, date time.Time) (models.FeatureVector, error)
}

type featureExtractor struct {
	trips    repository.TripRepository
	contexts repository.ContextRepository
}

// NewFeatureExtractor creates a FeatureExtractor. contexts may be nil, in which case
// contextual fields take their neutral defaults.
func NewFeatureExtractor(trips repository.TripRepository, contexts repository.ContextRepository) FeatureExtractor {
	return &featureExtractor{trips: trips, contexts: contexts}
}

func (e *featureExtractor) ExtractTripFeatures(trip *models.Trip) models.FeatureVector {
	if trip == nil {
		return models.FeatureVector{}
	}
	distance := finite(trip.DistanceKm)
	duration := finite(trip.DurationMinutes)

	return models.FeatureVector{
		DistanceKm:           distance,
		DurationMinutes:      duration,
		MeanSpeedKph:         finite(trip.MeanSpeedKph),
		MaxSpeedKph:          finite(trip.MaxSpeedKph),
		HarshBrakeRate:       rate(float64(trip.HarshBrakingEvents), distance),
		HarshAccelRate:       rate(float64(trip.HarshAccelEvents), distance),
		SpeedingRatio:        rate(float64(trip.SpeedingEvents), duration),
		NightFraction:        finite(trip.NightFraction),
		WeekendFraction:      finite(trip.WeekendFraction),
		UrbanFraction:        finite(trip.UrbanFraction),
		PhoneDistractionProb: finite(trip.PhoneDistractionProb),
		WeatherExposure:      finite(trip.WeatherExposure),
		TripCount:            1,
	}
}

func (e *featureExtractor) ExtractDailyFeatures(ctx context.Context, userID uuid.UUID, date time.Time) (models.FeatureVector, error) {
	from, to := models.DayBounds(date)

	trips, err := e.trips.FindByUserBetween(ctx, userID, from, to)
	if err != nil {
		return models.FeatureVector{}, wrapRepoErr("find trips for day", err)
	}
	if len(trips) == 0 {
		return NeutralDailyFeatures(), nil
	}

	var samples []*models.ContextSample
	if e.contexts != nil {
		samples, err = e.contexts.FindBetween(ctx, from, to)
		if err != nil {
			return models.FeatureVector{}, wrapRepoErr("find context samples for day", err)
		}
	}
	return AggregateDailyFeatures(trips, samples), nil
}

// NeutralDailyFeatures is the vector for a day with no trips.
func NeutralDailyFeatures() models.FeatureVector {
	fv := models.FeatureVector{}
	applyContext(&fv, nil)
	return fv
}

// AggregateDailyFeatures combines one day of trips and context samples.
// Counts and distances are summed, fractions and speeds averaged, and rates recomputed from totals.
func AggregateDailyFeatures(trips []*models.Trip, samples []*models.ContextSample) models.FeatureVector {
	var (
		n                                  float64
		distance, duration                 float64
		brakes, accels, speeding           float64
		meanSpeeds                         []float64
		maxSpeed                           float64
		night, weekend, urban, phone, wthr float64
	)
	for _, t := range trips {
		if t == nil {
			continue
		}
		n++
		distance += finite(t.DistanceKm)
		duration += finite(t.DurationMinutes)
		brakes += float64(t.HarshBrakingEvents)
		accels += float64(t.HarshAccelEvents)
		speeding += float64(t.SpeedingEvents)
		meanSpeeds = append(meanSpeeds, finite(t.MeanSpeedKph))
		maxSpeed = math.Max(maxSpeed, finite(t.MaxSpeedKph))
		night += finite(t.NightFraction)
		weekend += finite(t.WeekendFraction)
		urban += finite(t.UrbanFraction)
		phone += finite(t.PhoneDistractionProb)
		wthr += finite(t.WeatherExposure)
	}
	if n == 0 {
		return NeutralDailyFeatures()
	}

	meanSpeed, variance := meanAndVariance(meanSpeeds)
	fv := models.FeatureVector{
		DistanceKm:           distance,
		DurationMinutes:      duration,
		MeanSpeedKph:         meanSpeed,
		MaxSpeedKph:          maxSpeed,
		SpeedVariance:        variance,
		HarshBrakeRate:       rate(brakes, distance),
		HarshAccelRate:       rate(accels, distance),
		SpeedingRatio:        rate(speeding, duration),
		NightFraction:        night / n,
		WeekendFraction:      weekend / n,
		UrbanFraction:        urban / n,
		PhoneDistractionProb: phone / n,
		WeatherExposure:      wthr / n,
		TripCount:            n,
	}
	applyContext(&fv, samples)
	return fv
}

// applyContext averages the observed values of each contextual field, falling back per field
// to its neutral default when nothing was observed.
func applyContext(fv *models.FeatureVector, samples []*models.ContextSample) {
	avg := func(pick func(*models.ContextSample) *float64, neutral float64) float64 {
		var sum, n float64
		for _, s := range samples {
			if s == nil {
				continue
			}
			if v := pick(s); v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0) {
				sum += *v
				n++
			}
		}
		if n == 0 {
			return neutral
		}
		return sum / n
	}
	fv.TemperatureC = avg(func(s *models.ContextSample) *float64 { return s.TemperatureC }, constants.NeutralTemperatureC)
	fv.PrecipitationMM = avg(func(s *models.ContextSample) *float64 { return s.PrecipitationMM }, constants.NeutralPrecipitationMM)
	fv.VisibilityKm = avg(func(s *models.ContextSample) *float64 { return s.VisibilityKm }, constants.NeutralVisibilityKm)
	fv.CrimeIndex = avg(func(s *models.ContextSample) *float64 { return s.CrimeIndex }, constants.NeutralCrimeIndex)
	fv.AccidentDensity = avg(func(s *models.ContextSample) *float64 { return s.AccidentDensity }, constants.NeutralAccidentDensity)
}

// rate is count / max(denominator, 1).
func rate(count, denominator float64) float64 {
	return finite(finite(count) / math.Max(denominator, 1))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// meanAndVariance returns the arithmetic mean and the population variance.
func meanAndVariance(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, sq / float64(len(xs))
}

func wrapRepoErr(op string, err error) error {
	if _, ok := errors.AsAppError(err); ok {
		return err
	}
	return errors.ErrPersistence(op, err)
}
