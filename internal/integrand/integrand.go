// Package integrand holds the closed set of functions the scheduler can
// integrate. A selector is resolved to a Func once at configuration time;
// workers call the Func directly in their hot loop.
package integrand

import (
	"errors"
	"fmt"
	"math"
)

// Func evaluates the integrand at x. Intensity scales the work per sample
// without changing the returned value.
type Func func(x float64, intensity int) float64

// Selector identifies one of the built-in integrands on the command line.
type Selector int

const (
	Constant  Selector = iota + 1 // f(x) = 1
	Linear                        // f(x) = x
	Quadratic                     // f(x) = x^2
	Sine                          // f(x) = sin(x)
)

// ErrUnknownFunction is returned for selectors outside 1..4.
var ErrUnknownFunction = errors.New("unknown function selector")

var registry = map[Selector]struct {
	name string
	fn   Func
}{
	Constant:  {"constant", constant},
	Linear:    {"linear", linear},
	Quadratic: {"quadratic", quadratic},
	Sine:      {"sine", sine},
}

// Lookup resolves a selector.
func Lookup(s Selector) (Func, error) {
	entry, ok := registry[s]
	if !ok {
		return nil, fmt.Errorf("%w: %d (valid: 1-4)", ErrUnknownFunction, int(s))
	}
	return entry.fn, nil
}

func (s Selector) String() string {
	if entry, ok := registry[s]; ok {
		return entry.name
	}
	return fmt.Sprintf("selector(%d)", int(s))
}

// spin repeats eval intensity times and keeps the last result. The loop is
// there to make a sample cost proportional to intensity.
func spin(intensity int, eval func() float64) float64 {
	v := eval()
	for i := 1; i < intensity; i++ {
		v = eval()
	}
	return v
}

func constant(x float64, intensity int) float64 {
	return spin(intensity, func() float64 { return 1 })
}

func linear(x float64, intensity int) float64 {
	return spin(intensity, func() float64 { return x })
}

func quadratic(x float64, intensity int) float64 {
	return spin(intensity, func() float64 { return x * x })
}

func sine(x float64, intensity int) float64 {
	return spin(intensity, func() float64 { return math.Sin(x) })
}
