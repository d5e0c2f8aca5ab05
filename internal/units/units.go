// Package units converts quantities between the units of measure used on
// bill-of-materials lines and product storage units.
package units

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Unit is a unit of measure code.
type Unit string

const (
	Milliliter Unit = "ml"
	Centiliter Unit = "cl"
	Liter      Unit = "l"
	Gram       Unit = "g"
	Kilogram   Unit = "kg"
	Piece      Unit = "pz"
)

// Default is the storage unit assumed for products without one.
const Default = Piece

// Dimension groups units that can be converted into each other.
type Dimension string

const (
	Volume Dimension = "volume"
	Mass   Dimension = "mass"
	Count  Dimension = "count"
)

var (
	// ErrUnknownUnit is returned by Parse for unsupported codes.
	ErrUnknownUnit = errors.New("units: unknown unit")
	// ErrIncompatibleUnits is returned when converting across dimensions.
	ErrIncompatibleUnits = errors.New("units: incompatible units")
)

type scale struct {
	dim Dimension
	// factor to the dimension base (ml, g, pz)
	factor float64
}

var table = map[Unit]scale{
	Milliliter: {Volume, 1},
	Centiliter: {Volume, 10},
	Liter:      {Volume, 1000},
	Gram:       {Mass, 1},
	Kilogram:   {Mass, 1000},
	Piece:      {Count, 1},
}

var order = []Unit{Milliliter, Centiliter, Liter, Piece, Gram, Kilogram}

var folder = cases.Fold()

// Parse normalises s into a Unit. Blank input yields Default.
func Parse(s string) (Unit, error) {
	code := folder.String(strings.TrimSpace(s))
	if code == "" {
		return Default, nil
	}
	u := Unit(code)
	if _, ok := table[u]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownUnit, s)
	}
	return u, nil
}

// MustParse is Parse for trusted constants.
func MustParse(s string) Unit {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Valid reports whether u is a supported unit.
func (u Unit) Valid() bool {
	_, ok := table[u]
	return ok
}

// Dimension returns the unit dimension, or "" for unknown units.
func (u Unit) Dimension() Dimension {
	return table[u].dim
}

func (u Unit) String() string { return string(u) }

// Convert expresses qty given in from as a quantity of to.
func Convert(qty float64, from, to Unit) (float64, error) {
	if from == to {
		if !from.Valid() {
			return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, from)
		}
		return qty, nil
	}
	src, ok := table[from]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, from)
	}
	dst, ok := table[to]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, to)
	}
	if src.dim != dst.dim {
		return 0, fmt.Errorf("%w: %s to %s", ErrIncompatibleUnits, from, to)
	}
	if src.factor >= dst.factor {
		return qty * (src.factor / dst.factor), nil
	}
	return qty / (dst.factor / src.factor), nil
}

// Compatible reports whether quantities in a can be expressed in b.
func Compatible(a, b Unit) bool {
	sa, okA := table[a]
	sb, okB := table[b]
	return okA && okB && sa.dim == sb.dim
}

// Info describes a unit for API clients.
type Info struct {
	Code      Unit      `json:"code"`
	Dimension Dimension `json:"dimension"`
}

// All lists the supported units in display order.
func All() []Info {
	out := make([]Info, 0, len(order))
	for _, u := range order {
		out = append(out, Info{Code: u, Dimension: table[u].dim})
	}
	return out
}
