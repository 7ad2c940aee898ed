package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVisibilityWindowZeroSince(t *testing.T) {
	w := VisibilityWindow{}
	assert.True(t, w.Visible(time.Now()))
	assert.True(t, w.Visible(time.Time{}))
}

func TestVisibilityWindowCutoff(t *testing.T) {
	cut := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := VisibilityWindow{Since: cut}

	assert.False(t, w.Visible(cut.Add(-time.Second)))
	// The cutoff instant itself stays hidden, only strictly newer shows.
	assert.False(t, w.Visible(cut))
	assert.True(t, w.Visible(cut.Add(time.Second)))
}

func TestFilterVisible(t *testing.T) {
	cut := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "old", CreatedAt: cut.Add(-time.Hour)},
		{ID: "edge", CreatedAt: cut},
		{ID: "new", CreatedAt: cut.Add(time.Hour)},
	}

	got := FilterVisible(msgs, VisibilityWindow{Since: cut})
	if assert.Len(t, got, 1) {
		assert.Equal(t, "new", got[0].ID)
	}

	// No window: everything passes, order preserved.
	all := FilterVisible(msgs, VisibilityWindow{})
	assert.Len(t, all, 3)
	assert.Equal(t, "old", all[0].ID)
}

func TestFilterVisibleEmpty(t *testing.T) {
	got := FilterVisible(nil, VisibilityWindow{Since: time.Now()})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
