package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	tests := []struct {
		name        string
		skip, limit int
		want        []int
	}{
		{"everything", 0, 0, []int{1, 2, 3, 4, 5}},
		{"negative skip", -3, 2, []int{1, 2}},
		{"middle page", 1, 2, []int{2, 3}},
		{"limit past end", 3, 10, []int{4, 5}},
		{"skip past end", 5, 1, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Window(items, tt.skip, tt.limit))
		})
	}
}
