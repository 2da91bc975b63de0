package mos

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stardot/MatrixBrandy-sub002/mocks"
)

func TestSetTime(t *testing.T) {
	h := New(mocks.NewMockTerm())
	h.SetTime(5000)
	got := h.Time()
	assert.GreaterOrEqual(t, got, int64(5000))
	assert.Less(t, got, int64(5100))
}

func TestTimeDolRoundTrip(t *testing.T) {
	h := New(mocks.NewMockTerm())
	require.NoError(t, h.SetTimeDol("Tue,01 Jan 2030.12:00:00"))
	got, err := time.ParseInLocation(timeDolLayout, h.TimeDol(), time.Local)
	require.NoError(t, err)
	want := time.Date(2030, 1, 1, 12, 0, 0, 0, time.Local)
	assert.Less(t, got.Sub(want).Abs(), 5*time.Second)
}

func TestBadTimeDol(t *testing.T) {
	h := New(mocks.NewMockTerm())
	assert.Error(t, h.SetTimeDol("half past twelve"))
}

func TestOscliCat(t *testing.T) {
	mt := mocks.NewMockTerm()
	h := New(mt)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.bas"), []byte("10 END\n"), 0644))
	require.NoError(t, h.Oscli("CAT "+dir))
	assert.Contains(t, mt.Out.String(), "hello.bas")
}

func TestOscliBadCommand(t *testing.T) {
	h := New(mocks.NewMockTerm())
	assert.Error(t, h.Oscli("FROBNICATE"))
}
