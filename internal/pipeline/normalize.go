package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"annexparse/internal"
	"annexparse/internal/mapping"
	"annexparse/internal/util"
	"annexparse/internal/xmldoc"
)

const (
	RequestDateLayout = "Mon Jan 02 2006"
	NoNote            = "no_note"
	noteSeparator     = "; "
)

const (
	StepExtract      = "extract"
	StepDeliveryStop = "delivery-stop"
	StepLocation     = "location"
)

// RequestError ties a failure to the request and step that produced it.
type RequestError struct {
	Seq    int
	ItemID string
	Step   string
	Err    error
}

func (e *RequestError) Error() string {
	prefix := "request"
	if e.Seq > 0 {
		prefix = fmt.Sprintf("request %d", e.Seq)
	}
	if e.ItemID != "" {
		prefix += fmt.Sprintf(" (item %s)", e.ItemID)
	}
	return fmt.Sprintf("%s: %s: %v", prefix, e.Step, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// PickupKind separates literal pickup libraries from digitization requests.
type PickupKind int

const (
	PickupNamed PickupKind = iota
	PickupDigitizationHay
	PickupDigitizationOther
)

type Pickup struct {
	Kind PickupKind
	Name string
}

// InterpretPickup classifies a request. Digitization requests never carry a
// meaningful pickup library, so they are routed by where the item lives.
func InterpretPickup(raw internal.RawFields) Pickup {
	if util.ContainsFold(raw.RequestType, "digitization") {
		if util.ContainsFold(raw.PhysicalLocationCode, "hay") {
			return Pickup{Kind: PickupDigitizationHay}
		}
		return Pickup{Kind: PickupDigitizationOther}
	}
	return Pickup{Kind: PickupNamed, Name: raw.PickupLibrary}
}

// Value is the string looked up in the pickup-library table.
func (p Pickup) Value() string {
	switch p.Kind {
	case PickupDigitizationHay:
		return mapping.PickupDigitalHay
	case PickupDigitizationOther:
		return mapping.PickupDigitalNonHay
	default:
		return p.Name
	}
}

func (p Pickup) PersonalDelivery() bool {
	return p.Kind == PickupNamed && p.Name == mapping.PickupPersonalDelivery
}

type Normalizer struct {
	mapper *mapping.Mapper
	now    func() time.Time
}

type NormalizerOption func(*Normalizer)

// WithClock fixes the clock used for the request date.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) { n.now = now }
}

func NewNormalizer(mapper *mapping.Mapper, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{mapper: mapper, now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize turns one rsExport element into a GFA record.
func (n *Normalizer) Normalize(el *xmldoc.Node) (internal.NormalizedRequest, error) {
	raw, err := ExtractRawFields(el)
	if err != nil {
		return internal.NormalizedRequest{}, &RequestError{Step: StepExtract, Err: err}
	}
	return n.NormalizeFields(raw)
}

func (n *Normalizer) NormalizeFields(raw internal.RawFields) (internal.NormalizedRequest, error) {
	pickup := InterpretPickup(raw)

	stop, err := n.mapper.MapDeliveryStop(pickup.Value())
	if err != nil {
		return internal.NormalizedRequest{}, requestMappingError(raw.ItemID, StepDeliveryStop, err)
	}

	location, err := n.mapper.MapLocation(mapping.LocationInput{
		LibraryCode:      raw.LibraryCode,
		DeliveryStop:     stop,
		PersonalDelivery: pickup.PersonalDelivery(),
	})
	if err != nil {
		return internal.NormalizedRequest{}, requestMappingError(raw.ItemID, StepLocation, err)
	}

	return internal.NormalizedRequest{
		ItemID:           raw.ItemID,
		ItemBarcode:      raw.ItemBarcode,
		DeliveryStopCode: stop,
		LocationCode:     location,
		PatronName:       raw.PatronName,
		PatronBarcode:    raw.PatronBarcode,
		ItemTitle:        raw.ItemTitle,
		RequestDate:      FormatRequestDate(n.now()),
		PatronNote:       AssembleNote(raw.RequestNote, raw.PartToDigitize, raw.Description),
	}, nil
}

func requestMappingError(itemID, step string, err error) error {
	var mapErr *mapping.MappingError
	if errors.As(err, &mapErr) {
		mapErr.ItemID = itemID
	}
	return &RequestError{ItemID: itemID, Step: step, Err: err}
}

// ExtractRawFields reads every known child of a request element.
func ExtractRawFields(el *xmldoc.Node) (internal.RawFields, error) {
	var raw internal.RawFields
	fields := []struct {
		tag string
		dst *string
	}{
		{internal.TagItemID, &raw.ItemID},
		{internal.TagTitle, &raw.ItemTitle},
		{internal.TagBarcode, &raw.ItemBarcode},
		{internal.TagPatronName, &raw.PatronName},
		{internal.TagPatronIdentifier, &raw.PatronBarcode},
		{internal.TagRequestType, &raw.RequestType},
		{internal.TagPhysicalLocation, &raw.PhysicalLocationCode},
		{internal.TagLibrary, &raw.PickupLibrary},
		{internal.TagLibraryCode, &raw.LibraryCode},
		{internal.TagRequestNote, &raw.RequestNote},
		{internal.TagPartToDigitize, &raw.PartToDigitize},
		{internal.TagDescription, &raw.Description},
	}
	for _, f := range fields {
		text, _, err := xmldoc.Extract(el, f.tag)
		if err != nil {
			return internal.RawFields{}, err
		}
		*f.dst = text
	}
	return raw, nil
}

// AssembleNote joins the non-empty note fragments, skipping any fragment
// already contained in the note built so far.
func AssembleNote(fragments ...string) string {
	note := ""
	for _, fragment := range fragments {
		if fragment == "" {
			continue
		}
		if note == "" {
			note = fragment
			continue
		}
		if strings.Contains(note, fragment) {
			continue
		}
		note += noteSeparator + fragment
	}
	note = util.StripLineBreaks(note)
	if note == "" {
		return NoNote
	}
	return note
}

func FormatRequestDate(t time.Time) string {
	return t.Format(RequestDateLayout)
}
