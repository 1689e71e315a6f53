package correction

import (
	"fmt"
	"math"

	"github.com/lox/biascorrect/internal/models"
)

// Evaluate compares the raw and corrected series against observations.
// All three series must be non-empty and the same length.
func Evaluate(observed, simulated, corrected []float64) (models.Performance, error) {
	if err := checkTriple(observed, simulated, corrected); err != nil {
		return models.Performance{}, err
	}

	rmseSim, biasSim := errorStats(simulated, observed)
	rmseCorr, biasCorr := errorStats(corrected, observed)
	return models.Performance{
		RMSESim:  rmseSim,
		RMSECorr: rmseCorr,
		BiasSim:  biasSim,
		BiasCorr: biasCorr,
	}, nil
}

// ComputeMeans returns the mean of each series, as shown in the
// before/after statistics table.
func ComputeMeans(observed, simulated, corrected []float64) (models.Means, error) {
	if err := checkTriple(observed, simulated, corrected); err != nil {
		return models.Means{}, err
	}
	return models.Means{
		Observed:  mean(observed),
		Simulated: mean(simulated),
		Corrected: mean(corrected),
	}, nil
}

// errorStats returns the RMSE and mean signed error of model against ref.
func errorStats(model, ref []float64) (rmse, bias float64) {
	var sumSq, sum float64
	for i := range model {
		d := model[i] - ref[i]
		sum += d
		sumSq += d * d
	}
	n := float64(len(model))
	return math.Sqrt(sumSq / n), sum / n
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func checkTriple(observed, simulated, corrected []float64) error {
	if err := checkSeries("observed", observed); err != nil {
		return err
	}
	if err := checkSeries("simulated", simulated); err != nil {
		return err
	}
	if err := checkSeries("corrected", corrected); err != nil {
		return err
	}
	if len(simulated) != len(observed) || len(corrected) != len(observed) {
		return fmt.Errorf("%w: observed=%d simulated=%d corrected=%d",
			ErrLengthMismatch, len(observed), len(simulated), len(corrected))
	}
	return nil
}
