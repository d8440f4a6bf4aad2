package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRotateTopics(t *testing.T) {
	topics := []string{"a", "b", "c", "d", "e"}

	tests := []struct {
		name     string
		per      int
		hour     int
		expected []string
	}{
		{"first window", 2, 0, []string{"a", "b"}},
		{"second window", 2, 1, []string{"c", "d"}},
		{"short tail window", 2, 2, []string{"e"}},
		{"wraps around", 2, 3, []string{"a", "b"}},
		{"same window later in the day", 2, 13, []string{"c", "d"}},
		{"window covers everything", 5, 7, topics},
		{"window larger than list", 10, 0, topics},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, rotateTopics(topics, tt.per, tt.hour))
		})
	}

	assert.Nil(t, rotateTopics(nil, 2, 0))
	assert.Nil(t, rotateTopics(topics, 0, 0))
}

func TestRotateProviders(t *testing.T) {
	stable := []string{"reddit", "hackernews"}
	optional := []string{"stackoverflow", "youtube"}

	tests := []struct {
		minute   int
		expected []string
	}{
		{0, []string{"reddit", "hackernews", "stackoverflow"}},
		{9, []string{"reddit", "hackernews", "stackoverflow"}},
		{10, []string{"reddit", "hackernews", "youtube"}},
		{20, []string{"reddit", "hackernews", "stackoverflow"}},
		{59, []string{"reddit", "hackernews", "youtube"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, rotateProviders(stable, optional, tt.minute), "minute %d", tt.minute)
	}

	assert.Equal(t, stable, rotateProviders(stable, nil, 0))
}
