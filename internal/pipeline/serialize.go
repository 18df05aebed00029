package pipeline

import (
	"strconv"
	"strings"

	"annexparse/internal"
)

// Serialize renders records in the GFA data-file format: nine double-quoted,
// comma-separated fields per line, every line ending in "\n". Embedded quotes
// are written as-is; GFA does not understand escaping.
func Serialize(records []internal.NormalizedRequest) string {
	var b strings.Builder
	for _, r := range records {
		for i, field := range r.Fields() {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(field)
			b.WriteByte('"')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// CountFileContent is the body of the companion count file.
func CountFileContent(count int) string {
	return strconv.Itoa(count) + "\n"
}
