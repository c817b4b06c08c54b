package service

import (
	"fmt"

	"github.com/turtacn/ubi/pkg/constants"
)

// BandThresholds maps a score to a band. Each field is the inclusive lower bound of its band;
// anything below D is band E. Scoring and pricing share one value so they cannot drift apart.
type BandThresholds struct {
	A float64
	B float64
	C float64
	D float64
}

// DefaultBandThresholds returns 85/70/55/40.
func DefaultBandThresholds() BandThresholds {
	return BandThresholds{
		A: constants.DefaultThresholdA,
		B: constants.DefaultThresholdB,
		C: constants.DefaultThresholdC,
		D: constants.DefaultThresholdD,
	}
}

// Band returns the band for score. It is total over all float inputs.
func (t BandThresholds) Band(score float64) constants.Band {
	switch {
	case score >= t.A:
		return constants.BandA
	case score >= t.B:
		return constants.BandB
	case score >= t.C:
		return constants.BandC
	case score >= t.D:
		return constants.BandD
	default:
		return constants.BandE
	}
}

// Range returns the [min, max] score interval covered by band.
func (t BandThresholds) Range(band constants.Band) (float64, float64) {
	switch band {
	case constants.BandA:
		return t.A, constants.MaxScore
	case constants.BandB:
		return t.B, t.A
	case constants.BandC:
		return t.C, t.B
	case constants.BandD:
		return t.D, t.C
	default:
		return constants.MinScore, t.D
	}
}

// Validate checks the thresholds are strictly decreasing inside (0, 100].
func (t BandThresholds) Validate() error {
	if t.A > constants.MaxScore || !(t.A > t.B && t.B > t.C && t.C > t.D && t.D > constants.MinScore) {
		return fmt.Errorf("band thresholds must be strictly decreasing within (0, 100]: A=%.2f B=%.2f C=%.2f D=%.2f", t.A, t.B, t.C, t.D)
	}
	return nil
}

var bandDescriptions = map[constants.Band]string{
	constants.BandA: "Excellent driving behavior with minimal risk factors",
	constants.BandB: "Good driving behavior with some areas for improvement",
	constants.BandC: "Average driving behavior with moderate risk factors",
	constants.BandD: "Below-average driving behavior with elevated risk factors",
	constants.BandE: "Poor driving behavior with significant risk factors",
}

// BandDescription returns the fixed qualitative phrase for a band.
func BandDescription(band constants.Band) string {
	if d, ok := bandDescriptions[band]; ok {
		return d
	}
	return "Unknown risk band"
}
