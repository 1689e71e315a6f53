package dataset

import (
	"encoding/json"

	"github.com/lox/biascorrect/internal/models"
)

const (
	FlagTempMinOutOfRange = "temperature_min_out_of_range"
	FlagTempMaxOutOfRange = "temperature_max_out_of_range"
	FlagTempMinAboveMax   = "temperature_min_above_max"
	FlagPrecipNegative    = "precipitation_negative"
)

const (
	minPlausibleTemp = -60.0
	maxPlausibleTemp = 60.0
)

// ValidateRecord returns quality flags for suspicious values. Flagged records
// are still stored and corrected.
func ValidateRecord(rec models.DailyRecord) []string {
	var flags []string

	if rec.TempMin.Valid && (rec.TempMin.Float64 < minPlausibleTemp || rec.TempMin.Float64 > maxPlausibleTemp) {
		flags = append(flags, FlagTempMinOutOfRange)
	}
	if rec.TempMax.Valid && (rec.TempMax.Float64 < minPlausibleTemp || rec.TempMax.Float64 > maxPlausibleTemp) {
		flags = append(flags, FlagTempMaxOutOfRange)
	}
	if rec.TempMin.Valid && rec.TempMax.Valid && rec.TempMin.Float64 > rec.TempMax.Float64 {
		flags = append(flags, FlagTempMinAboveMax)
	}
	if rec.Precip.Valid && rec.Precip.Float64 < 0 {
		flags = append(flags, FlagPrecipNegative)
	}

	return flags
}

func QualityFlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	b, _ := json.Marshal(flags)
	return string(b)
}
