package localfiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadBack(t *testing.T) {
	f := New(t.TempDir())

	h, err := f.OpenOut("data.dat")
	require.NoError(t, err)
	require.NotZero(t, h)
	for _, b := range []byte("XYZ") {
		require.NoError(t, f.Bput(h, b))
	}
	require.NoError(t, f.Close(h))

	h, err = f.OpenIn("data.dat")
	require.NoError(t, err)
	require.NotZero(t, h)

	ext, err := f.Ext(h)
	require.NoError(t, err)
	assert.EqualValues(t, 3, ext)

	var got []byte
	for {
		eof, err := f.Eof(h)
		require.NoError(t, err)
		if eof {
			break
		}
		b, err := f.Bget(h)
		require.NoError(t, err)
		got = append(got, b)
	}
	assert.Equal(t, "XYZ", string(got))
	require.NoError(t, f.Close(h))
}

func TestOpenInMissingAnswersZero(t *testing.T) {
	f := New(t.TempDir())
	h, err := f.OpenIn("nosuch.dat")
	assert.NoError(t, err)
	assert.Zero(t, h)
}

func TestPtrSeeks(t *testing.T) {
	f := New(t.TempDir())
	h, err := f.OpenOut("seek.dat")
	require.NoError(t, err)
	for _, b := range []byte("ABCD") {
		require.NoError(t, f.Bput(h, b))
	}
	require.NoError(t, f.SetPtr(h, 1))
	b, err := f.Bget(h)
	require.NoError(t, err)
	assert.EqualValues(t, 'B', b)

	ptr, err := f.Ptr(h)
	require.NoError(t, err)
	assert.EqualValues(t, 2, ptr)
	require.NoError(t, f.Close(h))
}

func TestBadChannel(t *testing.T) {
	f := New(t.TempDir())
	_, err := f.Bget(7)
	assert.Error(t, err)
	assert.Error(t, f.Close(7))
}
