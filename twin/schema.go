package twin

import (
	"maps"
	"slices"
)

// Recognised domain names. Other names are legal; these get schema support.
const (
	DomainDemographics   = "demographics"
	DomainBiomarkers     = "biomarkers"
	DomainMedicalHistory = "medical_history"
	DomainLifestyle      = "lifestyle"
	DomainMedications    = "medications"
	DomainWearables      = "wearables"
	DomainGenetics       = "genetics"
)

// KnownDomains lists the recognised domain names in rendering order.
var KnownDomains = []string{
	DomainDemographics,
	DomainBiomarkers,
	DomainMedicalHistory,
	DomainLifestyle,
	DomainMedications,
	DomainWearables,
	DomainGenetics,
}

// Schema declares expected fields and their types. A twin created with a schema
// starts with every declared field in the Missing state, and SetValue takes a
// new field's type from the schema instead of inferring it.
type Schema struct {
	fields       map[string]map[string]DataType
	domainTypes  map[string]DataType
	knownDomains map[string]bool
}

// NewSchema returns an empty schema that recognises KnownDomains.
func NewSchema() *Schema {
	s := &Schema{
		fields:       make(map[string]map[string]DataType),
		domainTypes:  make(map[string]DataType),
		knownDomains: make(map[string]bool, len(KnownDomains)),
	}
	for _, d := range KnownDomains {
		s.knownDomains[d] = true
	}
	return s
}

// DefaultSchema declares the standard demographic, history and lifestyle fields
// and one numeric biomarker field per name given.
func DefaultSchema(biomarkers ...string) *Schema {
	s := NewSchema().
		Declare(DomainDemographics, "age", TypeNumber).
		Declare(DomainDemographics, "sex", TypeString).
		Declare(DomainDemographics, "height", TypeNumber).
		Declare(DomainDemographics, "weight", TypeNumber).
		Declare(DomainMedicalHistory, "conditions", TypeList).
		Declare(DomainMedicalHistory, "surgeries", TypeList).
		Declare(DomainMedicalHistory, "family_history", TypeList).
		Declare(DomainMedicalHistory, "allergies", TypeList).
		Declare(DomainLifestyle, "smoking_status", TypeString).
		Declare(DomainLifestyle, "exercise_minutes_per_week", TypeNumber).
		Declare(DomainLifestyle, "alcohol_units_per_week", TypeNumber).
		Declare(DomainLifestyle, "sleep_hours", TypeNumber).
		Declare(DomainMedications, "current", TypeList).
		DomainType(DomainBiomarkers, TypeNumber).
		DomainType(DomainWearables, TypeNumber)
	for _, name := range biomarkers {
		s.Declare(DomainBiomarkers, name, TypeNumber)
	}
	return s
}

// Declare adds an expected field.
func (s *Schema) Declare(domain, field string, dt DataType) *Schema {
	if s.fields[domain] == nil {
		s.fields[domain] = make(map[string]DataType)
	}
	s.fields[domain][field] = dt
	return s
}

// DomainType sets the type used for undeclared fields of a domain.
func (s *Schema) DomainType(domain string, dt DataType) *Schema {
	s.domainTypes[domain] = dt
	return s
}

// TypeOf resolves the declared type for a field: the field declaration first,
// then the domain default.
func (s *Schema) TypeOf(domain, field string) (DataType, bool) {
	if s == nil {
		return "", false
	}
	if dt, ok := s.fields[domain][field]; ok {
		return dt, true
	}
	dt, ok := s.domainTypes[domain]
	return dt, ok
}

// Domains returns the domains that declare at least one field, sorted.
func (s *Schema) Domains() []string {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.fields))
}

// Fields returns the declared field names for a domain, sorted.
func (s *Schema) Fields(domain string) []string {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.fields[domain]))
}

// IsKnownDomain reports whether name is one of the recognised domains.
func (s *Schema) IsKnownDomain(name string) bool {
	if s == nil {
		return slices.Contains(KnownDomains, name)
	}
	return s.knownDomains[name]
}

// Recognise replaces the recognised domain names.
func (s *Schema) Recognise(domains ...string) *Schema {
	s.knownDomains = make(map[string]bool, len(domains))
	for _, d := range domains {
		s.knownDomains[d] = true
	}
	return s
}
