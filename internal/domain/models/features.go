package models

import "sort"

// FeatureVector is the fully populated input to a risk model.
// Every named field defaults to zero; Extra carries model-specific features not known to this version.
type FeatureVector struct {
	DistanceKm           float64 `json:"distance_km"`
	DurationMinutes      float64 `json:"duration_minutes"`
	MeanSpeedKph         float64 `json:"mean_speed_kph"`
	MaxSpeedKph          float64 `json:"max_speed_kph"`
	SpeedVariance        float64 `json:"speed_variance"`
	HarshBrakeRate       float64 `json:"harsh_brake_rate"`
	HarshAccelRate       float64 `json:"harsh_accel_rate"`
	SpeedingRatio        float64 `json:"speeding_ratio"`
	NightFraction        float64 `json:"night_fraction"`
	WeekendFraction      float64 `json:"weekend_fraction"`
	UrbanFraction        float64 `json:"urban_fraction"`
	PhoneDistractionProb float64 `json:"phone_distraction_prob"`
	WeatherExposure      float64 `json:"weather_exposure"`
	TripCount            float64 `json:"trip_count"`

	// Contextual fields
	TemperatureC    float64 `json:"temperature_c"`
	PrecipitationMM float64 `json:"precipitation_mm"`
	VisibilityKm    float64 `json:"visibility_km"`
	CrimeIndex      float64 `json:"crime_index"`
	AccidentDensity float64 `json:"accident_density"`

	Extra map[string]float64 `json:"extra,omitempty"`
}

// Values flattens the vector into name -> value, including extras.
// Named fields win over an extra of the same name.
func (f FeatureVector) Values() map[string]float64 {
	out := make(map[string]float64, 19+len(f.Extra))
	for k, v := range f.Extra {
		out[k] = v
	}
	out["distance_km"] = f.DistanceKm
	out["duration_minutes"] = f.DurationMinutes
	out["mean_speed_kph"] = f.MeanSpeedKph
	out["max_speed_kph"] = f.MaxSpeedKph
	out["speed_variance"] = f.SpeedVariance
	out["harsh_brake_rate"] = f.HarshBrakeRate
	out["harsh_accel_rate"] = f.HarshAccelRate
	out["speeding_ratio"] = f.SpeedingRatio
	out["night_fraction"] = f.NightFraction
	out["weekend_fraction"] = f.WeekendFraction
	out["urban_fraction"] = f.UrbanFraction
	out["phone_distraction_prob"] = f.PhoneDistractionProb
	out["weather_exposure"] = f.WeatherExposure
	out["trip_count"] = f.TripCount
	out["temperature_c"] = f.TemperatureC
	out["precipitation_mm"] = f.PrecipitationMM
	out["visibility_km"] = f.VisibilityKm
	out["crime_index"] = f.CrimeIndex
	out["accident_density"] = f.AccidentDensity
	return out
}

// Names returns the keys of Values in sorted order.
func (f FeatureVector) Names() []string {
	vals := f.Values()
	names := make([]string, 0, len(vals))
	for k := range vals {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// FeatureVectorFromValues is the inverse of Values: known names fill the named fields,
// everything else lands in Extra.
func FeatureVectorFromValues(values map[string]float64) FeatureVector {
	var f FeatureVector
	named := map[string]*float64{
		"distance_km":            &f.DistanceKm,
		"duration_minutes":       &f.DurationMinutes,
		"mean_speed_kph":         &f.MeanSpeedKph,
		"max_speed_kph":          &f.MaxSpeedKph,
		"speed_variance":         &f.SpeedVariance,
		"harsh_brake_rate":       &f.HarshBrakeRate,
		"harsh_accel_rate":       &f.HarshAccelRate,
		"speeding_ratio":         &f.SpeedingRatio,
		"night_fraction":         &f.NightFraction,
		"weekend_fraction":       &f.WeekendFraction,
		"urban_fraction":         &f.UrbanFraction,
		"phone_distraction_prob": &f.PhoneDistractionProb,
		"weather_exposure":       &f.WeatherExposure,
		"trip_count":             &f.TripCount,
		"temperature_c":          &f.TemperatureC,
		"precipitation_mm":       &f.PrecipitationMM,
		"visibility_km":          &f.VisibilityKm,
		"crime_index":            &f.CrimeIndex,
		"accident_density":       &f.AccidentDensity,
	}
	for k, v := range values {
		if p, ok := named[k]; ok {
			*p = v
			continue
		}
		if f.Extra == nil {
			f.Extra = make(map[string]float64)
		}
		f.Extra[k] = v
	}
	return f
}
