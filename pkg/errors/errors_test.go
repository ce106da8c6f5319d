package errors

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	assert.EqualError(t, New("plain"), "plain")
	assert.EqualError(t, New("unsupported database type: %v", "mysql"), "unsupported database type: mysql")
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "nothing"))

	err := Wrap(io.EOF, "read item %d", 3)
	assert.EqualError(t, err, "read item 3: EOF")
	assert.True(t, Is(err, io.EOF))
	assert.Equal(t, io.EOF, Cause(err))
}

func TestAs(t *testing.T) {
	type codeErr struct{ error }
	err := Wrap(codeErr{io.ErrUnexpectedEOF}, "decode")

	var target codeErr
	assert.True(t, As(err, &target))
}
