package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"annexparse/internal"
	"annexparse/internal/config"
	"annexparse/internal/logger"
	"annexparse/internal/mapping"
	"annexparse/internal/xmldoc"
)

// Policy decides what a single failed request does to its batch.
type Policy int

const (
	// PolicyStrict fails the whole batch on the first failed request.
	PolicyStrict Policy = iota
	// PolicyPartial drops failed requests and keeps the rest.
	PolicyPartial
)

func ParsePolicy(value string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", config.PolicyStrict:
		return PolicyStrict, nil
	case config.PolicyPartial:
		return PolicyPartial, nil
	default:
		return PolicyStrict, fmt.Errorf("unsupported batch policy: %s", value)
	}
}

func (p Policy) String() string {
	if p == PolicyPartial {
		return config.PolicyPartial
	}
	return config.PolicyStrict
}

// DocumentParseError means the export was not well-formed XML.
type DocumentParseError struct {
	Err error
}

func (e *DocumentParseError) Error() string {
	return fmt.Sprintf("parse export document: %v", e.Err)
}

func (e *DocumentParseError) Unwrap() error { return e.Err }

// Entry is the outcome for one request, kept for the audit trail.
type Entry struct {
	Seq    int
	Raw    internal.RawFields
	Record *internal.NormalizedRequest
	Err    error
}

type Batch struct {
	Entries []Entry
	Records []internal.NormalizedRequest
}

// Count is the value written to the count file.
func (b Batch) Count() int {
	return len(b.Records)
}

func (b Batch) Failures() []Entry {
	out := []Entry{}
	for _, e := range b.Entries {
		if e.Err != nil {
			out = append(out, e)
		}
	}
	return out
}

type Assembler struct {
	normalizer *Normalizer
	policy     Policy
	log        logger.Logger
}

func NewAssembler(normalizer *Normalizer, policy Policy, log logger.Logger) *Assembler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Assembler{normalizer: normalizer, policy: policy, log: log}
}

// Assemble normalizes every rsExport element in document order. Under the
// strict policy the returned batch holds no records when err is non-nil;
// its entries still describe what was seen up to the failure.
func (a *Assembler) Assemble(documentText string) (Batch, error) {
	root, err := xmldoc.Parse(documentText)
	if err != nil {
		return Batch{}, &DocumentParseError{Err: err}
	}

	elements := requestElements(root)
	a.log.Debug("request elements found", logger.Int("count", len(elements)))

	batch := Batch{
		Entries: make([]Entry, 0, len(elements)),
		Records: make([]internal.NormalizedRequest, 0, len(elements)),
	}
	for i, el := range elements {
		seq := i + 1
		entry, err := a.normalizeOne(seq, el)
		batch.Entries = append(batch.Entries, entry)
		if err != nil {
			a.log.Error("problem preparing gfa entry",
				logger.Int("seq", seq),
				logger.String("item_id", entry.Raw.ItemID),
				logger.String("step", stepOf(err)),
				logger.String("value", unmappedValue(err)),
				logger.Err(err),
			)
			if a.policy == PolicyStrict {
				batch.Records = nil
				return batch, err
			}
			continue
		}
		batch.Records = append(batch.Records, *entry.Record)
	}

	a.log.Info("batch assembled",
		logger.Int("requests", len(elements)),
		logger.Int("records", len(batch.Records)),
		logger.Int("failed", len(elements)-len(batch.Records)),
		logger.String("policy", a.policy.String()),
	)
	return batch, nil
}

func (a *Assembler) normalizeOne(seq int, el *xmldoc.Node) (Entry, error) {
	entry := Entry{Seq: seq}

	raw, err := ExtractRawFields(el)
	if err != nil {
		entry.Err = &RequestError{Seq: seq, Step: StepExtract, Err: err}
		return entry, entry.Err
	}
	entry.Raw = raw

	record, err := a.normalizer.NormalizeFields(raw)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			reqErr.Seq = seq
		}
		entry.Err = err
		return entry, err
	}
	entry.Record = &record
	return entry, nil
}

// requestElements returns the request elements in document order, the
// root included when the export is a single bare request.
func requestElements(root *xmldoc.Node) []*xmldoc.Node {
	elements := root.FindAll(internal.TagRequest)
	if root.Name == internal.TagRequest {
		elements = append([]*xmldoc.Node{root}, elements...)
	}
	return elements
}

func stepOf(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Step
	}
	return ""
}

func unmappedValue(err error) string {
	var mapErr *mapping.MappingError
	if errors.As(err, &mapErr) {
		return mapErr.Value
	}
	return ""
}
