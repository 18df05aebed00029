package xmldoc

import (
	"errors"
	"fmt"
)

// ExtractionError means the extractor was handed something it cannot search.
// Well-formed documents never produce one.
type ExtractionError struct {
	Tag string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract <%s>: %v", e.Tag, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

var (
	errNilElement = errors.New("nil element")
	errEmptyTag   = errors.New("empty tag name")
)

// Extract returns the text of the first descendant named tag. A missing
// element is not an error: it yields "" and found=false.
func Extract(el *Node, tag string) (text string, found bool, err error) {
	if el == nil {
		return "", false, &ExtractionError{Tag: tag, Err: errNilElement}
	}
	if tag == "" {
		return "", false, &ExtractionError{Tag: tag, Err: errEmptyTag}
	}
	n := el.Find(tag)
	if n == nil {
		return "", false, nil
	}
	return n.Text(), true, nil
}
