// Package units provides the physical-unit registry used to validate
// declared result columns. Column names carry their unit as a
// parenthesized suffix, e.g. "Power (W)"; the suffix must name a
// registered unit or formatter construction fails.
package units

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUndefinedUnit indicates a parenthesized column suffix that is not a
// registered unit. Use errors.Is for typed assertions.
var ErrUndefinedUnit = errors.New("undefined unit")

// Unit is one registered physical unit.
type Unit struct {
	// Symbol is the canonical symbol used in column suffixes.
	Symbol string
	// Name is the spelled-out unit name.
	Name string
	// Quantity is the physical quantity the unit measures.
	Quantity string
}

// registry holds the known units, keyed by symbol. Symbols are
// case-sensitive: "mW" and "MW" are different units.
var registry = map[string]Unit{
	"W":   {Symbol: "W", Name: "watt", Quantity: "power"},
	"mW":  {Symbol: "mW", Name: "milliwatt", Quantity: "power"},
	"dB":  {Symbol: "dB", Name: "decibel", Quantity: "ratio"},
	"dBm": {Symbol: "dBm", Name: "decibel-milliwatt", Quantity: "power"},
	"V":   {Symbol: "V", Name: "volt", Quantity: "voltage"},
	"mV":  {Symbol: "mV", Name: "millivolt", Quantity: "voltage"},
	"A":   {Symbol: "A", Name: "ampere", Quantity: "current"},
	"s":   {Symbol: "s", Name: "second", Quantity: "time"},
	"ms":  {Symbol: "ms", Name: "millisecond", Quantity: "time"},
	"us":  {Symbol: "us", Name: "microsecond", Quantity: "time"},
	"ns":  {Symbol: "ns", Name: "nanosecond", Quantity: "time"},
	"Hz":  {Symbol: "Hz", Name: "hertz", Quantity: "frequency"},
	"kHz": {Symbol: "kHz", Name: "kilohertz", Quantity: "frequency"},
	"MHz": {Symbol: "MHz", Name: "megahertz", Quantity: "frequency"},
	"GHz": {Symbol: "GHz", Name: "gigahertz", Quantity: "frequency"},
	"m":   {Symbol: "m", Name: "meter", Quantity: "length"},
	"cm":  {Symbol: "cm", Name: "centimeter", Quantity: "length"},
	"mm":  {Symbol: "mm", Name: "millimeter", Quantity: "length"},
	"km":  {Symbol: "km", Name: "kilometer", Quantity: "length"},
	"m/s": {Symbol: "m/s", Name: "meter per second", Quantity: "velocity"},
	"deg": {Symbol: "deg", Name: "degree", Quantity: "angle"},
	"rad": {Symbol: "rad", Name: "radian", Quantity: "angle"},
	"K":   {Symbol: "K", Name: "kelvin", Quantity: "temperature"},
	"%":   {Symbol: "%", Name: "percent", Quantity: "ratio"},

	// Survey-native counting units.
	"counts":  {Symbol: "counts", Name: "ADC counts", Quantity: "amplitude"},
	"traces":  {Symbol: "traces", Name: "radargram traces", Quantity: "count"},
	"samples": {Symbol: "samples", Name: "samples per trace", Quantity: "count"},
	"sweeps":  {Symbol: "sweeps", Name: "stacked sweeps", Quantity: "count"},
}

// Lookup returns the unit registered under symbol.
func Lookup(symbol string) (Unit, bool) {
	u, ok := registry[symbol]
	return u, ok
}

// Symbols returns all registered unit symbols in sorted order.
func Symbols() []string {
	out := make([]string, 0, len(registry))
	for s := range registry {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Column is a parsed column declaration.
type Column struct {
	// Label is the column name with any unit suffix stripped.
	Label string
	// Unit is the resolved unit. Zero value for dimensionless columns.
	Unit Unit
	// HasUnit is true when the declaration carried a unit suffix.
	HasUnit bool
}

// String renders the column back in declaration form.
func (c Column) String() string {
	if !c.HasUnit {
		return c.Label
	}
	return fmt.Sprintf("%s (%s)", c.Label, c.Unit.Symbol)
}

// ParseColumn parses a column declaration of the form "Name (unit)".
//
// Declarations without a parenthesized suffix are dimensionless and
// parse without error. A suffix that does not name a registered unit
// fails with an error wrapping ErrUndefinedUnit.
func ParseColumn(decl string) (Column, error) {
	decl = strings.TrimSpace(decl)
	if decl == "" {
		return Column{}, errors.New("empty column declaration")
	}

	open := strings.LastIndex(decl, "(")
	if open < 0 || !strings.HasSuffix(decl, ")") {
		return Column{Label: decl}, nil
	}

	label := strings.TrimSpace(decl[:open])
	symbol := strings.TrimSpace(decl[open+1 : len(decl)-1])
	if label == "" {
		// "(W)" alone is not a column name
		return Column{Label: decl}, nil
	}

	unit, ok := registry[symbol]
	if !ok {
		return Column{}, fmt.Errorf("column %q: %w: %q", decl, ErrUndefinedUnit, symbol)
	}

	return Column{Label: label, Unit: unit, HasUnit: true}, nil
}

// ParseColumns parses a full DATA_COLUMNS declaration, failing fast on
// the first undefined unit.
func ParseColumns(decls []string) ([]Column, error) {
	cols := make([]Column, 0, len(decls))
	for _, d := range decls {
		c, err := ParseColumn(d)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, nil
}
