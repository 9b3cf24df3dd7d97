package pluginlist

import (
	"testing"

	"github.com/leeforge/interception/intercept"
	"github.com/stretchr/testify/assert"
)

func TestCatalog_AncestorsBreadthFirstWithoutDuplicates(t *testing.T) {
	c := NewCatalog(
		&intercept.TypeManifest{Type: "a.Leaf", Ancestors: []string{"a.Left", "a.Right"}},
		&intercept.TypeManifest{Type: "a.Left", Ancestors: []string{"a.Root"}},
		&intercept.TypeManifest{Type: "a.Right", Ancestors: []string{"a.Root", "a.Leaf"}},
	)

	assert.Equal(t, []string{"a.Left", "a.Right", "a.Root"}, c.Ancestors("a.Leaf"))
	assert.Nil(t, c.Ancestors("a.Unknown"))
}

func TestCatalog_RegisterIgnoresInvalid(t *testing.T) {
	c := NewCatalog()
	c.Register(nil)
	c.Register(&intercept.TypeManifest{})

	_, ok := c.Manifest("")
	assert.False(t, ok)

	c.Register(&intercept.TypeManifest{Type: "a.Leaf"})
	m, ok := c.Manifest("a.Leaf")
	assert.True(t, ok)
	assert.Equal(t, "a.Leaf", m.Type)
}
