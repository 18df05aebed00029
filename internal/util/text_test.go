package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsFold(t *testing.T) {
	cases := []struct {
		s, sub string
		want   bool
	}{
		{"PHYSICAL_TO_DIGITIZATION", "digitization", true},
		{"STAFF_PHYSICAL_DIGITIZATION", "digitization", true},
		{"PATRON_PHYSICAL", "digitization", false},
		{"HAY_ANNEX", "hay", true},
		{"", "hay", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ContainsFold(tc.s, tc.sub), "%q contains %q", tc.s, tc.sub)
	}
}

func TestStripLineBreaks(t *testing.T) {
	assert.Equal(t, "pages 1-5please scan", StripLineBreaks("pages 1-5\nplease scan"))
	assert.Equal(t, "ab", StripLineBreaks("a\r\nb"))
	assert.Equal(t, "ab", StripLineBreaks("a\rb"))
}

func TestDeref(t *testing.T) {
	assert.Equal(t, "x", Deref(StringPtr("x")))
	assert.Equal(t, "", Deref(nil))
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "REQ_a_b", SanitizeFileName("REQ a/b"))
	assert.Equal(t, "éé", Truncate("ééé", 2))
}
