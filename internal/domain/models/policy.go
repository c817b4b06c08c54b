package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/ubi/pkg/constants"
)

// Policy represents an insurance policy whose premium is priced from the holder's risk score.
type Policy struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	PolicyNumber string
	BasePremium  float64
	Status       constants.PolicyStatus
	StartDate    time.Time
	EndDate      time.Time
	CreatedAt    time.Time
}

// IsActive checks if the policy is in an active state.
func (p *Policy) IsActive() bool {
	return p.Status == constants.PolicyStatusActive
}

//Personal.AI order the ending
