package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginate(t *testing.T) {
	keys := []string{"k0", "k1", "k2", "k3", "k4", "k5", "k6", "k7", "k8", "k9"}

	tests := []struct {
		name        string
		start, stop int
		want        []string
	}{
		{"middle window", 2, 5, []string{"k2", "k3", "k4"}},
		{"stop clamped", 8, 20, []string{"k8", "k9"}},
		{"empty window", 5, 5, []string{}},
		{"inverted window", 6, 3, []string{}},
		{"negative start clamped", -3, 2, []string{"k0", "k1"}},
		{"start past end", 12, 20, []string{}},
		{"whole sequence", 0, 10, keys},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Paginate(keys, tt.start, tt.stop)
			assert.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPaginate_AppendDoesNotClobberSource(t *testing.T) {
	keys := []string{"a", "b", "c", "d"}
	page := Paginate(keys, 0, 2)
	_ = append(page, "x")
	assert.Equal(t, "c", keys[2])
}
