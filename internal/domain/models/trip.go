package models

import (
	"time"

	"github.com/google/uuid"
)

// Trip is a completed journey as recorded by the telematics pipeline.
// Trips are owned by the ingestion side and read here only.
type Trip struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	VehicleID            uuid.UUID
	StartTS              time.Time
	EndTS                time.Time
	DistanceKm           float64
	DurationMinutes      float64
	MeanSpeedKph         float64
	MaxSpeedKph          float64
	NightFraction        float64
	WeekendFraction      float64
	UrbanFraction        float64
	HarshBrakingEvents   int
	HarshAccelEvents     int
	SpeedingEvents       int
	PhoneDistractionProb float64
	WeatherExposure      float64
}

// ContextSample is one contextual observation (weather and area risk) for a point in time.
// Nil fields were not observed.
type ContextSample struct {
	ID              uuid.UUID
	TS              time.Time
	TemperatureC    *float64
	PrecipitationMM *float64
	VisibilityKm    *float64
	CrimeIndex      *float64
	AccidentDensity *float64
}

// DayBounds returns the UTC calendar day [start, end) containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

//Personal.AI order the ending
