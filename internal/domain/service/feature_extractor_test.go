package service_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ubi/internal/domain/models"
	repomocks "github.com/turtacn/ubi/internal/domain/repository/mocks"
	"github.com/turtacn/ubi/internal/domain/service"
	"github.com/turtacn/ubi/pkg/errors"
)

func fptr(v float64) *float64 { return &v }

func TestExtractTripFeatures(t *testing.T) {
	ex := service.NewFeatureExtractor(nil, nil)

	trip := &models.Trip{
		DistanceKm:           20,
		DurationMinutes:      40,
		MeanSpeedKph:         30,
		MaxSpeedKph:          90,
		NightFraction:        0.25,
		WeekendFraction:      1,
		UrbanFraction:        0.5,
		HarshBrakingEvents:   4,
		HarshAccelEvents:     2,
		SpeedingEvents:       8,
		PhoneDistractionProb: 0.1,
		WeatherExposure:      0.2,
	}
	fv := ex.ExtractTripFeatures(trip)

	assert.Equal(t, 20.0, fv.DistanceKm)
	assert.Equal(t, 40.0, fv.DurationMinutes)
	assert.InDelta(t, 0.2, fv.HarshBrakeRate, 1e-9)
	assert.InDelta(t, 0.1, fv.HarshAccelRate, 1e-9)
	assert.InDelta(t, 0.2, fv.SpeedingRatio, 1e-9)
	assert.Equal(t, 0.25, fv.NightFraction)
	assert.Equal(t, 1.0, fv.TripCount)
}

func TestExtractTripFeatures_FloorsDenominators(t *testing.T) {
	ex := service.NewFeatureExtractor(nil, nil)

	fv := ex.ExtractTripFeatures(&models.Trip{DistanceKm: 0.2, DurationMinutes: 0, HarshBrakingEvents: 3, SpeedingEvents: 2})

	assert.Equal(t, 3.0, fv.HarshBrakeRate)
	assert.Equal(t, 2.0, fv.SpeedingRatio)
}

func TestExtractTripFeatures_NonFiniteBecomesZero(t *testing.T) {
	ex := service.NewFeatureExtractor(nil, nil)

	fv := ex.ExtractTripFeatures(&models.Trip{DistanceKm: math.NaN(), MaxSpeedKph: math.Inf(1), HarshBrakingEvents: 5})

	assert.Equal(t, 0.0, fv.DistanceKm)
	assert.Equal(t, 0.0, fv.MaxSpeedKph)
	assert.Equal(t, 5.0, fv.HarshBrakeRate)
	assert.Equal(t, models.FeatureVector{}, ex.ExtractTripFeatures(nil))
}

func TestAggregateDailyFeatures(t *testing.T) {
	trips := []*models.Trip{
		{DistanceKm: 10, DurationMinutes: 20, MeanSpeedKph: 30, MaxSpeedKph: 60, NightFraction: 0.2, HarshBrakingEvents: 1, SpeedingEvents: 2},
		{DistanceKm: 30, DurationMinutes: 40, MeanSpeedKph: 50, MaxSpeedKph: 110, NightFraction: 0.4, HarshBrakingEvents: 3, SpeedingEvents: 4},
	}
	samples := []*models.ContextSample{
		{TemperatureC: fptr(10), CrimeIndex: fptr(40)},
		{TemperatureC: fptr(20)},
	}

	fv := service.AggregateDailyFeatures(trips, samples)

	assert.Equal(t, 40.0, fv.DistanceKm)
	assert.Equal(t, 60.0, fv.DurationMinutes)
	assert.Equal(t, 40.0, fv.MeanSpeedKph)
	assert.Equal(t, 110.0, fv.MaxSpeedKph)
	assert.InDelta(t, 100.0, fv.SpeedVariance, 1e-9)
	// rates come from totals, not from averaging per-trip rates
	assert.InDelta(t, 4.0/40.0, fv.HarshBrakeRate, 1e-9)
	assert.InDelta(t, 6.0/60.0, fv.SpeedingRatio, 1e-9)
	assert.InDelta(t, 0.3, fv.NightFraction, 1e-9)
	assert.Equal(t, 2.0, fv.TripCount)

	assert.Equal(t, 15.0, fv.TemperatureC)
	assert.Equal(t, 40.0, fv.CrimeIndex)
	// unobserved contextual fields stay neutral
	assert.Equal(t, 10.0, fv.VisibilityKm)
	assert.Equal(t, 2.0, fv.AccidentDensity)
}

func TestExtractDailyFeatures_NoTripsIsNeutral(t *testing.T) {
	trips := new(repomocks.MockTripRepository)
	ctxRepo := new(repomocks.MockContextRepository)
	userID := uuid.New()
	day := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)
	from := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	trips.On("FindByUserBetween", mock.Anything, userID, from, from.AddDate(0, 0, 1)).Return([]*models.Trip{}, nil)

	fv, err := service.NewFeatureExtractor(trips, ctxRepo).ExtractDailyFeatures(context.Background(), userID, day)
	require.NoError(t, err)

	assert.Equal(t, service.NeutralDailyFeatures(), fv)
	assert.Equal(t, 20.0, fv.TemperatureC)
	assert.Equal(t, 50.0, fv.CrimeIndex)
	assert.Equal(t, 0.0, fv.HarshBrakeRate)
	ctxRepo.AssertNotCalled(t, "FindBetween", mock.Anything, mock.Anything, mock.Anything)
}

func TestExtractDailyFeatures_UsesUTCDay(t *testing.T) {
	trips := new(repomocks.MockTripRepository)
	ctxRepo := new(repomocks.MockContextRepository)
	userID := uuid.New()
	// 23:30 at UTC-5 is 04:30 UTC on the next day
	day := time.Date(2024, 3, 10, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	from := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	trips.On("FindByUserBetween", mock.Anything, userID, from, to).
		Return([]*models.Trip{{DistanceKm: 5, HarshBrakingEvents: 1}}, nil)
	ctxRepo.On("FindBetween", mock.Anything, from, to).Return([]*models.ContextSample{}, nil)

	fv, err := service.NewFeatureExtractor(trips, ctxRepo).ExtractDailyFeatures(context.Background(), userID, day)
	require.NoError(t, err)
	assert.Equal(t, 5.0, fv.DistanceKm)
	assert.Equal(t, 0.2, fv.HarshBrakeRate)
	trips.AssertExpectations(t)
	ctxRepo.AssertExpectations(t)
}

func TestExtractDailyFeatures_RepositoryFailure(t *testing.T) {
	trips := new(repomocks.MockTripRepository)
	trips.On("FindByUserBetween", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	_, err := service.NewFeatureExtractor(trips, nil).ExtractDailyFeatures(context.Background(), uuid.New(), time.Now())
	require.Error(t, err)
	assert.True(t, errors.IsPersistence(err))
}

func TestFeatureVector_Values(t *testing.T) {
	fv := models.FeatureVector{HarshBrakeRate: 0.3, Extra: map[string]float64{"cornering_rate": 0.7, "harsh_brake_rate": 99}}
	vals := fv.Values()

	assert.Equal(t, 0.3, vals["harsh_brake_rate"])
	assert.Equal(t, 0.7, vals["cornering_rate"])
	assert.Equal(t, 0.0, vals["speeding_ratio"])
	assert.Contains(t, fv.Names(), "accident_density")
}
