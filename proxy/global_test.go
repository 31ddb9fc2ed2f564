package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetDefaultAndGetProxy(t *testing.T) {
	assert.Nil(t, GetProxy())

	p := New()
	SetDefault(p)
	assert.Same(t, p, GetProxy())

	SetDefault(nil)
	assert.Nil(t, GetProxy())
}
