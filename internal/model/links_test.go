package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractLinks(t *testing.T) {
	got := ExtractLinks("check https://example.com/a and http://foo.bar?q=1 out")
	assert.Equal(t, []string{"https://example.com/a", "http://foo.bar?q=1"}, got)
}

func TestExtractLinksNone(t *testing.T) {
	assert.Empty(t, ExtractLinks("no links here, just example.com text"))
}

func TestExtractLinksEmptyContent(t *testing.T) {
	assert.Empty(t, ExtractLinks(""))
}
