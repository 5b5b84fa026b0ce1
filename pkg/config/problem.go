package config

import (
	"errors"
	"fmt"
	"strconv"

	"quadsched/internal/integrand"
)

// MinPoints is the smallest point count the scheduler accepts. Below it the
// chunk count gets too small to keep every pipeline slot busy.
const MinPoints = 1000

var (
	ErrTooFewPoints = errors.New("too few points")
	ErrMissingArgs  = errors.New("missing arguments")
)

// Usage names the positional arguments.
const Usage = "<FunctionID> <LowerBound> <UpperBound> <NoOfPoints> <Intensity>"

// Problem is the immutable integration setup shared by the controller and
// every worker.
type Problem struct {
	Function  integrand.Selector
	Lower     float64
	Upper     float64
	Points    int64
	Intensity int

	// F is Function resolved once by NewProblem.
	F integrand.Func
}

// NewProblem validates the inputs and resolves the integrand.
func NewProblem(sel integrand.Selector, lower, upper float64, points int64, intensity int) (*Problem, error) {
	if points < MinPoints {
		return nil, fmt.Errorf("%w: got %d, need at least %d", ErrTooFewPoints, points, MinPoints)
	}
	fn, err := integrand.Lookup(sel)
	if err != nil {
		return nil, err
	}
	return &Problem{
		Function:  sel,
		Lower:     lower,
		Upper:     upper,
		Points:    points,
		Intensity: intensity,
		F:         fn,
	}, nil
}

// ParseArgs builds a Problem from the five positional arguments.
func ParseArgs(args []string) (*Problem, error) {
	if len(args) < 5 {
		return nil, fmt.Errorf("%w: got %d of 5", ErrMissingArgs, len(args))
	}
	sel, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("function id %q: %w", args[0], err)
	}
	lower, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return nil, fmt.Errorf("lower bound %q: %w", args[1], err)
	}
	upper, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return nil, fmt.Errorf("upper bound %q: %w", args[2], err)
	}
	points, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("no of points %q: %w", args[3], err)
	}
	intensity, err := strconv.Atoi(args[4])
	if err != nil {
		return nil, fmt.Errorf("intensity %q: %w", args[4], err)
	}
	return NewProblem(integrand.Selector(sel), lower, upper, points, intensity)
}

// Granularity is the chunk length for this problem size.
func (p *Problem) Granularity() int64 {
	if p.Points < 10000 {
		return 10
	}
	return 100
}

// Step is the width of one midpoint sub-interval.
func (p *Problem) Step() float64 {
	return (p.Upper - p.Lower) / float64(p.Points)
}
