package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name        string
		prev, next  []string
		wantAdded   []string
		wantRemoved []string
	}{
		{
			name:        "overlapping lists",
			prev:        []string{"A", "B"},
			next:        []string{"B", "C"},
			wantAdded:   []string{"C"},
			wantRemoved: []string{"A"},
		},
		{
			name:        "both empty",
			prev:        []string{},
			next:        []string{},
			wantAdded:   []string{},
			wantRemoved: []string{},
		},
		{
			name:        "nil lists are empty sets",
			prev:        nil,
			next:        []string{"A"},
			wantAdded:   []string{"A"},
			wantRemoved: []string{},
		},
		{
			name:        "order independent",
			prev:        []string{"C", "B", "A"},
			next:        []string{"A", "B", "C"},
			wantAdded:   []string{},
			wantRemoved: []string{},
		},
		{
			name:        "duplicates collapse",
			prev:        []string{"A", "A"},
			next:        []string{"B", "B", "A"},
			wantAdded:   []string{"B"},
			wantRemoved: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added, removed := Diff(tt.prev, tt.next)
			assert.ElementsMatch(t, tt.wantAdded, added)
			assert.ElementsMatch(t, tt.wantRemoved, removed)
			assert.NotNil(t, added)
			assert.NotNil(t, removed)
		})
	}
}

func TestMentorDelta(t *testing.T) {
	d := MentorDelta([]string{"m1", "m2"}, []string{"m2", "m3"})
	assert.Equal(t, []string{"m3"}, d.AddedMentors)
	assert.Equal(t, []string{"m1"}, d.RemovedMentors)
	assert.Empty(t, d.AddedParticipants)
	assert.False(t, d.Empty())

	assert.True(t, MentorDelta(nil, nil).Empty())
}
