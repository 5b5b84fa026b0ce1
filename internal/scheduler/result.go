package scheduler

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// Result is what the controller reports once every worker has exited.
type Result struct {
	RunID   string        `json:"run_id"`
	Value   float64       `json:"value"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Chunks  int64         `json:"chunks"`

	// PerWorker[r] is the number of chunks sent to rank r. Index 0 is the
	// controller and is always zero.
	PerWorker []int64 `json:"per_worker"`
	Balance   Balance `json:"balance"`
}

// Balance summarizes how evenly chunks were spread over the workers.
type Balance struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

func (c *Controller) result(runID string, elapsed time.Duration) Result {
	return Result{
		RunID:     runID,
		Value:     c.sum,
		Elapsed:   elapsed,
		Chunks:    c.gen.Issued(),
		PerWorker: c.perWorker,
		Balance:   balance(c.perWorker[1:]),
	}
}

func balance(counts []int64) Balance {
	if len(counts) == 0 {
		return Balance{}
	}
	xs := make([]float64, len(counts))
	for i, n := range counts {
		xs[i] = float64(n)
	}
	if len(xs) == 1 {
		return Balance{Mean: xs[0]}
	}
	mean, std := stat.MeanStdDev(xs, nil)
	return Balance{Mean: mean, StdDev: std}
}
