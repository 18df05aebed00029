package mapping

import "fmt"

const (
	TablePickupLibrary = "pickup-library"
	TableLibraryCode   = "library-code"
)

// MappingError reports a source value missing from its vocabulary table.
// The tables need updating when one of these shows up.
type MappingError struct {
	Table  string
	Value  string
	ItemID string
}

func (e *MappingError) Error() string {
	if e.ItemID == "" {
		return fmt.Sprintf("unmapped %s value %q", e.Table, e.Value)
	}
	return fmt.Sprintf("unmapped %s value %q (item %s)", e.Table, e.Value, e.ItemID)
}

// Mapper resolves codes against a private copy of its tables.
type Mapper struct {
	tables Tables
}

func NewMapper(t Tables) *Mapper {
	return &Mapper{tables: t.clone()}
}

// Tables returns a copy of the vocabulary in use.
func (m *Mapper) Tables() Tables {
	return m.tables.clone()
}

// MapDeliveryStop is an exact, case-sensitive lookup.
func (m *Mapper) MapDeliveryStop(pickup string) (string, error) {
	code, ok := m.tables.PickupToDeliveryStop[pickup]
	if !ok {
		return "", &MappingError{Table: TablePickupLibrary, Value: pickup}
	}
	return code, nil
}

type LocationInput struct {
	LibraryCode      string
	DeliveryStop     string
	PersonalDelivery bool
}

type locationRule struct {
	name    string
	applies func(in LocationInput) bool
	resolve func(m *Mapper, in LocationInput) (string, error)
}

// locationRules are evaluated top to bottom; the first that applies decides.
var locationRules = []locationRule{
	{
		name:    "electronic delivery",
		applies: func(in LocationInput) bool { return in.DeliveryStop == StopElectronic },
		resolve: func(m *Mapper, _ LocationInput) (string, error) { return m.tables.ElectronicDeliveryLocation, nil },
	},
	{
		name:    "digitization at hay",
		applies: func(in LocationInput) bool { return in.DeliveryStop == StopElectronicHay },
		resolve: func(*Mapper, LocationInput) (string, error) { return LocationHay, nil },
	},
	{
		name:    "personal delivery",
		applies: func(in LocationInput) bool { return in.DeliveryStop == StopRockefeller && in.PersonalDelivery },
		resolve: func(*Mapper, LocationInput) (string, error) { return LocationStandard, nil },
	},
	{
		name:    "library code",
		applies: func(LocationInput) bool { return true },
		resolve: func(m *Mapper, in LocationInput) (string, error) {
			code, ok := m.tables.LibraryCodeToLocation[in.LibraryCode]
			if !ok {
				return "", &MappingError{Table: TableLibraryCode, Value: in.LibraryCode}
			}
			return code, nil
		},
	},
}

// MapLocation resolves the location code for an already-mapped delivery stop.
func (m *Mapper) MapLocation(in LocationInput) (string, error) {
	for _, rule := range locationRules {
		if rule.applies(in) {
			return rule.resolve(m, in)
		}
	}
	return "", &MappingError{Table: TableLibraryCode, Value: in.LibraryCode}
}

// LocationRuleNames lists the location rules in precedence order.
func LocationRuleNames() []string {
	out := make([]string, 0, len(locationRules))
	for _, r := range locationRules {
		out = append(out, r.name)
	}
	return out
}
