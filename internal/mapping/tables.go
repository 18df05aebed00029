// Package mapping turns Alma pickup-library and library-code vocabulary into
// GFA delivery-stop and location codes.
package mapping

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed default_tables.yaml
var defaultTablesYAML []byte

const (
	StopAnnex         = "AN"
	StopElectronic    = "ED"
	StopElectronicHay = "EH"
	StopHay           = "HA"
	StopOrwig         = "OR"
	StopRockefeller   = "RO"
	StopSciences      = "SC"

	LocationHay        = "QH"
	LocationStandard   = "QS"
	LocationElectronic = "ED"

	// Interpreted pickup values; Alma never sends the DIGITAL_REQUEST ones.
	PickupDigitalHay       = "DIGITAL_REQUEST_HAY"
	PickupDigitalNonHay    = "DIGITAL_REQUEST_NONHAY"
	PickupPersonalDelivery = "PERSONAL_DELIVERY"
)

var (
	DeliveryStopCodes = []string{StopAnnex, StopElectronic, StopElectronicHay, StopHay, StopOrwig, StopRockefeller, StopSciences}
	LocationCodes     = []string{LocationHay, LocationStandard, LocationElectronic}
)

// Tables is the controlled vocabulary the Mapper resolves against.
type Tables struct {
	PickupToDeliveryStop       map[string]string `yaml:"pickup_to_delivery_stop"`
	LibraryCodeToLocation      map[string]string `yaml:"library_code_to_location"`
	ElectronicDeliveryLocation string            `yaml:"electronic_delivery_location"`
}

// DefaultTables returns the built-in vocabulary.
func DefaultTables() Tables {
	t, err := ParseTables(defaultTablesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded mapping tables: %v", err))
	}
	return t
}

// LoadTables reads a vocabulary file, or the built-in one when path is empty.
func LoadTables(path string) (Tables, error) {
	if path == "" {
		return DefaultTables(), nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read mapping tables: %w", err)
	}
	t, err := ParseTables(blob)
	if err != nil {
		return Tables{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func ParseTables(blob []byte) (Tables, error) {
	var t Tables
	dec := yaml.NewDecoder(bytes.NewReader(blob))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return Tables{}, fmt.Errorf("decode mapping tables: %w", err)
	}
	if t.ElectronicDeliveryLocation == "" {
		t.ElectronicDeliveryLocation = LocationStandard
	}
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

// Validate checks every code against the closed GFA code sets. ED is only a
// legal location for electronic delivery, so the library-code table may not
// produce it.
func (t Tables) Validate() error {
	if len(t.PickupToDeliveryStop) == 0 {
		return fmt.Errorf("pickup_to_delivery_stop is empty")
	}
	if len(t.LibraryCodeToLocation) == 0 {
		return fmt.Errorf("library_code_to_location is empty")
	}
	for _, k := range sortedKeys(t.PickupToDeliveryStop) {
		if v := t.PickupToDeliveryStop[k]; !slices.Contains(DeliveryStopCodes, v) {
			return fmt.Errorf("pickup %q maps to unknown delivery-stop %q", k, v)
		}
	}
	for _, k := range sortedKeys(t.LibraryCodeToLocation) {
		if v := t.LibraryCodeToLocation[k]; v != LocationHay && v != LocationStandard {
			return fmt.Errorf("library code %q maps to invalid location %q", k, v)
		}
	}
	if t.ElectronicDeliveryLocation != LocationStandard && t.ElectronicDeliveryLocation != LocationElectronic {
		return fmt.Errorf("electronic_delivery_location must be %s or %s, got %q", LocationStandard, LocationElectronic, t.ElectronicDeliveryLocation)
	}
	return nil
}

func (t Tables) clone() Tables {
	out := Tables{
		PickupToDeliveryStop:       make(map[string]string, len(t.PickupToDeliveryStop)),
		LibraryCodeToLocation:      make(map[string]string, len(t.LibraryCodeToLocation)),
		ElectronicDeliveryLocation: t.ElectronicDeliveryLocation,
	}
	for k, v := range t.PickupToDeliveryStop {
		out.PickupToDeliveryStop[k] = v
	}
	for k, v := range t.LibraryCodeToLocation {
		out.LibraryCodeToLocation[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
