package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWordFilter(t *testing.T) {
	f := NewWordFilter([]string{"Palavrão", "idiota", "cala a boca", "  "})

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"clean", "hello there", false},
		{"exact", "seu idiota", true},
		{"upper and accents", "IDIÓTA!", true},
		{"accent stripped in list", "que palavrao", true},
		{"substring is not a word", "idiotas", false},
		{"phrase", "Cala   a boca, por favor", true},
		{"phrase split", "cala sua boca", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.ContainsProhibited(tt.text))
		})
	}
}

func TestWordFilter_EmptyList(t *testing.T) {
	f := NewWordFilter(nil)
	assert.False(t, f.ContainsProhibited("anything goes"))
}
