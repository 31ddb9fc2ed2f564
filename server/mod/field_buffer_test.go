package mod

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldBuffer_AppendJoinsWithSeparator(t *testing.T) {
	b := NewFieldBuffer(' ')
	b.Append("a")
	b.Append("b")
	b.Append("c")
	assert.Equal(t, "a b c", b.String())
}

func TestFieldBuffer_AppendEmptyStringBecomesDash(t *testing.T) {
	b := NewFieldBuffer(' ')
	b.Append("")
	b.Append("x")
	assert.Equal(t, "- x", b.String())
}

func TestFieldBuffer_FAppendReplacesSpacesWithPlus(t *testing.T) {
	b := NewFieldBuffer(' ')
	b.FAppend("GET /some path HTTP/1.1")
	assert.Equal(t, "GET+/some+path+HTTP/1.1", b.String())
}

func TestFieldBuffer_BytesMatchesString(t *testing.T) {
	b := NewFieldBuffer(',')
	b.Append("one")
	b.Append("two")
	assert.Equal(t, "one,two", string(b.Bytes()))
}
