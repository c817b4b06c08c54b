package postgres

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/pkg/constants"
)

// TripDBM is the persisted form of models.Trip.
type TripDBM struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID               uuid.UUID `gorm:"type:uuid;not null;index:idx_trips_user_start,priority:1"`
	VehicleID            uuid.UUID `gorm:"type:uuid"`
	StartTS              time.Time `gorm:"not null;index:idx_trips_user_start,priority:2"`
	EndTS                time.Time `gorm:"not null"`
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

func (TripDBM) TableName() string { return "trips" }

func tripToDBM(t *models.Trip) *TripDBM {
	return &TripDBM{
		ID:                   t.ID,
		UserID:               t.UserID,
		VehicleID:            t.VehicleID,
		StartTS:              t.StartTS.UTC(),
		EndTS:                t.EndTS.UTC(),
		DistanceKm:           t.DistanceKm,
		DurationMinutes:      t.DurationMinutes,
		MeanSpeedKph:         t.MeanSpeedKph,
		MaxSpeedKph:          t.MaxSpeedKph,
		NightFraction:        t.NightFraction,
		WeekendFraction:      t.WeekendFraction,
		UrbanFraction:        t.UrbanFraction,
		HarshBrakingEvents:   t.HarshBrakingEvents,
		HarshAccelEvents:     t.HarshAccelEvents,
		SpeedingEvents:       t.SpeedingEvents,
		PhoneDistractionProb: t.PhoneDistractionProb,
		WeatherExposure:      t.WeatherExposure,
	}
}

func (d *TripDBM) toModel() *models.Trip {
	return &models.Trip{
		ID:                   d.ID,
		UserID:               d.UserID,
		VehicleID:            d.VehicleID,
		StartTS:              d.StartTS.UTC(),
		EndTS:                d.EndTS.UTC(),
		DistanceKm:           d.DistanceKm,
		DurationMinutes:      d.DurationMinutes,
		MeanSpeedKph:         d.MeanSpeedKph,
		MaxSpeedKph:          d.MaxSpeedKph,
		NightFraction:        d.NightFraction,
		WeekendFraction:      d.WeekendFraction,
		UrbanFraction:        d.UrbanFraction,
		HarshBrakingEvents:   d.HarshBrakingEvents,
		HarshAccelEvents:     d.HarshAccelEvents,
		SpeedingEvents:       d.SpeedingEvents,
		PhoneDistractionProb: d.PhoneDistractionProb,
		WeatherExposure:      d.WeatherExposure,
	}
}

// ContextSampleDBM is the persisted form of models.ContextSample. NULL means not observed.
type ContextSampleDBM struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	TS              time.Time `gorm:"column:ts;not null;index"`
	TemperatureC    *float64
	PrecipitationMM *float64 `gorm:"column:precipitation_mm"`
	VisibilityKm    *float64
	CrimeIndex      *float64
	AccidentDensity *float64
}

func (ContextSampleDBM) TableName() string { return "context_samples" }

// PolicyDBM is the persisted form of models.Policy.
type PolicyDBM struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	PolicyNumber string          `gorm:"type:varchar(64);uniqueIndex"`
	BasePremium  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Status       string          `gorm:"type:varchar(16);not null;index"`
	StartDate    time.Time
	EndDate      time.Time
	CreatedAt    time.Time
}

func (PolicyDBM) TableName() string { return "policies" }

func policyToDBM(p *models.Policy) *PolicyDBM {
	return &PolicyDBM{
		ID:           p.ID,
		UserID:       p.UserID,
		PolicyNumber: p.PolicyNumber,
		BasePremium:  decimal.NewFromFloat(p.BasePremium),
		Status:       string(p.Status),
		StartDate:    p.StartDate.UTC(),
		EndDate:      p.EndDate.UTC(),
		CreatedAt:    p.CreatedAt.UTC(),
	}
}

func (d *PolicyDBM) toModel() *models.Policy {
	return &models.Policy{
		ID:           d.ID,
		UserID:       d.UserID,
		PolicyNumber: d.PolicyNumber,
		BasePremium:  d.BasePremium.InexactFloat64(),
		Status:       constants.PolicyStatus(d.Status),
		StartDate:    d.StartDate.UTC(),
		EndDate:      d.EndDate.UTC(),
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

// RiskScoreDBM is the persisted form of models.RiskAssessment.
type RiskScoreDBM struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID      `gorm:"type:uuid;not null;index:idx_risk_scores_user_computed,priority:1"`
	TripID           *uuid.UUID     `gorm:"type:uuid;index"`
	ScoreType        string         `gorm:"type:varchar(16);not null"`
	ScoreValue       float64        `gorm:"not null"`
	Band             string         `gorm:"type:varchar(1);not null"`
	ClaimProbability float64        `gorm:"not null"`
	ClaimSeverity    float64        `gorm:"not null"`
	ExpectedLoss     float64        `gorm:"not null"`
	Explanations     datatypes.JSON `gorm:"not null"`
	Features         datatypes.JSON `gorm:"not null"`
	ModelVersion     string         `gorm:"type:varchar(64);not null"`
	ComputedAt       time.Time      `gorm:"not null;index:idx_risk_scores_user_computed,priority:2"`
}

func (RiskScoreDBM) TableName() string { return "risk_scores" }

func riskScoreToDBM(a *models.RiskAssessment) (*RiskScoreDBM, error) {
	explanations, err := json.Marshal(a.Explanations)
	if err != nil {
		return nil, err
	}
	features, err := json.Marshal(a.Features)
	if err != nil {
		return nil, err
	}
	return &RiskScoreDBM{
		ID:               a.ID,
		UserID:           a.UserID,
		TripID:           a.TripID,
		ScoreType:        string(a.ScoreType),
		ScoreValue:       a.ScoreValue,
		Band:             string(a.Band),
		ClaimProbability: a.ClaimProbability,
		ClaimSeverity:    a.ClaimSeverity,
		ExpectedLoss:     a.ExpectedLoss,
		Explanations:     datatypes.JSON(explanations),
		Features:         datatypes.JSON(features),
		ModelVersion:     a.ModelVersion,
		ComputedAt:       a.ComputedAt.UTC(),
	}, nil
}

func (d *RiskScoreDBM) toModel() (*models.RiskAssessment, error) {
	a := &models.RiskAssessment{
		ID:               d.ID,
		UserID:           d.UserID,
		TripID:           d.TripID,
		ScoreType:        constants.ScoreType(d.ScoreType),
		ScoreValue:       d.ScoreValue,
		Band:             constants.Band(d.Band),
		ClaimProbability: d.ClaimProbability,
		ClaimSeverity:    d.ClaimSeverity,
		ExpectedLoss:     d.ExpectedLoss,
		ModelVersion:     d.ModelVersion,
		ComputedAt:       d.ComputedAt.UTC(),
	}
	if err := json.Unmarshal(d.Explanations, &a.Explanations); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(d.Features, &a.Features); err != nil {
		return nil, err
	}
	return a, nil
}

// PremiumAdjustmentDBM is the persisted form of models.PremiumAdjustmentRecord.
// Rows are inserted once and never updated.
type PremiumAdjustmentDBM struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	PolicyID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_adjustments_policy_created,priority:1"`
	PeriodStart  time.Time       `gorm:"not null"`
	PeriodEnd    time.Time       `gorm:"not null"`
	Band         string          `gorm:"type:varchar(1);not null;index"`
	DeltaPct     float64         `gorm:"not null"`
	DeltaAmount  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	NewPremium   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Reason       string          `gorm:"type:text"`
	ScoreVersion string          `gorm:"type:varchar(64);not null"`
	RiskScoreID  *uuid.UUID      `gorm:"type:uuid"`
	CooldownHeld bool            `gorm:"not null;default:false"`
	CreatedAt    time.Time       `gorm:"not null;index:idx_adjustments_policy_created,priority:2"`
}

func (PremiumAdjustmentDBM) TableName() string { return "premium_adjustments" }

func adjustmentToDBM(r *models.PremiumAdjustmentRecord) *PremiumAdjustmentDBM {
	return &PremiumAdjustmentDBM{
		ID:           r.ID,
		PolicyID:     r.PolicyID,
		PeriodStart:  r.PeriodStart.UTC(),
		PeriodEnd:    r.PeriodEnd.UTC(),
		Band:         string(r.Band),
		DeltaPct:     r.DeltaPct,
		DeltaAmount:  decimal.NewFromFloat(r.DeltaAmount),
		NewPremium:   decimal.NewFromFloat(r.NewPremium),
		Reason:       r.Reason,
		ScoreVersion: r.ScoreVersion,
		RiskScoreID:  r.RiskScoreID,
		CooldownHeld: r.CooldownHeld,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

func (d *PremiumAdjustmentDBM) toModel() *models.PremiumAdjustmentRecord {
	return &models.PremiumAdjustmentRecord{
		ID:           d.ID,
		PolicyID:     d.PolicyID,
		PeriodStart:  d.PeriodStart.UTC(),
		PeriodEnd:    d.PeriodEnd.UTC(),
		Band:         constants.Band(d.Band),
		DeltaPct:     d.DeltaPct,
		DeltaAmount:  d.DeltaAmount.InexactFloat64(),
		NewPremium:   d.NewPremium.InexactFloat64(),
		Reason:       d.Reason,
		ScoreVersion: d.ScoreVersion,
		RiskScoreID:  d.RiskScoreID,
		CooldownHeld: d.CooldownHeld,
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

// AutoMigrate creates or updates every table used by the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&TripDBM{},
		&ContextSampleDBM{},
		&PolicyDBM{},
		&RiskScoreDBM{},
		&PremiumAdjustmentDBM{},
	)
}
