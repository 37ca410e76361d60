// Package landcover computes, for each point, the share of a buffer around it
// covered by every land-cover class of a polygon layer.
package landcover

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"github.com/veloclimat/veloclimat/internal/errs"
)

// Class is a land-cover class code (local climate zone).
type Class int

// TrackedClasses is the closed list of classes reported as fraction columns.
var TrackedClasses = []Class{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 101, 102, 103, 104, 105, 106, 107}

// IsTracked reports whether c is one of TrackedClasses.
func (c Class) IsTracked() bool {
	for _, t := range TrackedClasses {
		if t == c {
			return true
		}
	}
	return false
}

// Macro is a coarse land-cover category.
type Macro string

// Macro categories, in output order.
const (
	MacroUrban      Macro = "urban"
	MacroVegetation Macro = "vegetation"
	MacroBare       Macro = "bare"
	MacroWater      Macro = "water"
)

// Macros lists the categories in output order.
var Macros = []Macro{MacroUrban, MacroVegetation, MacroBare, MacroWater}

// Mapping assigns tracked classes to macro categories.
type Mapping map[Macro][]Class

// DefaultMapping returns the LCZ grouping: built types and paved surfaces are
// urban, tree and plant types vegetation.
func DefaultMapping() Mapping {
	return Mapping{
		MacroUrban:      {1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 105},
		MacroVegetation: {101, 102, 103, 104},
		MacroBare:       {106},
		MacroWater:      {107},
	}
}

// Validate checks the categories are the known ones, non-empty and disjoint,
// and reference tracked classes only.
func (m Mapping) Validate() error {
	if len(m) == 0 {
		return errs.Invalid("land cover", "mapping", "empty")
	}

	owner := make(map[Class]Macro)
	names := make([]string, 0, len(m))
	for macro := range m {
		names = append(names, string(macro))
	}
	sort.Strings(names)

	for _, name := range names {
		macro := Macro(name)
		if !knownMacro(macro) {
			return errs.Invalid("land cover", "mapping category", name)
		}
		classes := m[macro]
		if len(classes) == 0 {
			return errs.Invalid("land cover", "mapping."+name, "empty")
		}
		for _, c := range classes {
			if !c.IsTracked() {
				return errs.Invalid("land cover", "mapping."+name, fmt.Sprintf("untracked class %d", c))
			}
			if prev, ok := owner[c]; ok {
				return errs.Invalid("land cover", "mapping."+name, fmt.Sprintf("class %d already in %s", c, prev))
			}
			owner[c] = macro
		}
	}
	return nil
}

// MacroOf returns the category of c.
func (m Mapping) MacroOf(c Class) (Macro, bool) {
	for macro, classes := range m {
		for _, mc := range classes {
			if mc == c {
				return macro, true
			}
		}
	}
	return "", false
}

func knownMacro(m Macro) bool {
	for _, k := range Macros {
		if k == m {
			return true
		}
	}
	return false
}

// Polygon is one feature of the land-cover layer. Geometry is an orb.Polygon
// or orb.MultiPolygon.
type Polygon struct {
	Class    Class
	Geometry orb.Geometry
}

// Site is a point to profile. Carry holds the carry-through column values in
// configuration order.
type Site struct {
	ID       int64
	Position orb.Point
	Carry    []any
}

// Profile is the land-cover composition around one site.
type Profile struct {
	Site Site

	// Fractions holds the summed coverage of every class met in the buffer,
	// tracked or not.
	Fractions map[Class]float64

	// Top1 and Top2 are the two classes with the largest coverage. Zero means
	// no such class.
	Top1 Class
	Top2 Class

	// Macro holds the summed coverage per category. Every category is present.
	Macro map[Macro]float64
}

// Fraction returns the coverage of c, zero when absent.
func (p Profile) Fraction(c Class) float64 {
	return p.Fractions[c]
}
