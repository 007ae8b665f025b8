// Package terminology holds the fixed code lookups converters use to map
// free-text clinical terms onto standard code systems.
package terminology

import (
	"github.com/ehr/clinicalmerge/internal/platform/fhir"
	"github.com/ehr/clinicalmerge/internal/platform/textnorm"
)

// Concept is one row of a lookup table. Terms are the surface forms that
// map to it, matched after textnorm.Fold.
type Concept struct {
	Code    string
	Display string
	Terms   []string
	// Unit is the UCUM unit a measurement of this concept is usually
	// reported in. Empty for non-measurements.
	Unit string
}

// Table maps folded terms and codes in one code system to concepts.
type Table struct {
	system string
	byTerm map[string]Concept
	byCode map[string]Concept
}

func newTable(system string, concepts []Concept) *Table {
	t := &Table{
		system: system,
		byTerm: make(map[string]Concept),
		byCode: make(map[string]Concept, len(concepts)),
	}
	for _, c := range concepts {
		t.byCode[c.Code] = c
		t.byTerm[textnorm.Fold(c.Display)] = c
		for _, term := range c.Terms {
			t.byTerm[textnorm.Fold(term)] = c
		}
	}
	return t
}

// System is the code system URI of the table.
func (t *Table) System() string { return t.system }

// Lookup returns the concept a free-text term names.
func (t *Table) Lookup(term string) (Concept, bool) {
	c, ok := t.byTerm[textnorm.Fold(term)]
	return c, ok
}

// ByCode returns the concept with the given code.
func (t *Table) ByCode(code string) (Concept, bool) {
	c, ok := t.byCode[code]
	return c, ok
}

// Coding renders c as a coding in the table's system.
func (t *Table) Coding(c Concept) fhir.Coding {
	return fhir.Coding{System: t.system, Code: c.Code, Display: c.Display}
}

// Concept builds the CodeableConcept for term: coded when the table knows
// it, text-only otherwise.
func (t *Table) Concept(term string) (*fhir.CodeableConcept, bool) {
	c, ok := t.Lookup(term)
	if !ok {
		return fhir.TextConcept(term), false
	}
	return fhir.CodedConcept(t.system, c.Code, c.Display, term), true
}

// Len is the number of concepts in the table.
func (t *Table) Len() int { return len(t.byCode) }
