package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stardot/MatrixBrandy-sub002/evaluator"
	"github.com/stardot/MatrixBrandy-sub002/heap"
	"github.com/stardot/MatrixBrandy-sub002/mocks"
	"github.com/stardot/MatrixBrandy-sub002/object"
)

func testCli() (*evaluator.Exec, *object.Environment, *mocks.MockTerm) {
	mt := mocks.NewMockTerm()
	env := object.NewEnvironment(mt, heap.New(heap.MinSize))
	return evaluator.New(env), env, mt
}

func TestExecCommand(t *testing.T) {
	tests := []struct {
		inp string
		exp []string // substrings expected in the output so far
	}{
		{inp: "10 PRINT ;1+2"},
		{inp: "20 GOTO 10"},
		{inp: "LIST", exp: []string{"10 PRINT ;1+2", "20 GOTO 10"}},
		{inp: "20", exp: []string{}},
		{inp: "X=7"},
		{inp: "PRINT ;X*6", exp: []string{"42"}},
		{inp: "RUN", exp: []string{"3"}},
		{inp: "PRINT 1(", exp: []string{"Syntax error"}},
	}

	ex, env, mt := testCli()
	for _, tt := range tests {
		mt.Out.Reset()
		require.NoError(t, execCommand(tt.inp, ex, env))
		for _, want := range tt.exp {
			assert.Contains(t, mt.Out.String(), want, tt.inp)
		}
	}
}

func TestDeleteLine(t *testing.T) {
	ex, env, mt := testCli()
	require.NoError(t, execCommand("10 PRINT ;1", ex, env))
	require.NoError(t, execCommand("20 PRINT ;2", ex, env))
	require.NoError(t, execCommand("10", ex, env))
	require.NoError(t, execCommand("LIST", ex, env))
	out := mt.Out.String()
	assert.NotContains(t, out, "10 PRINT")
	assert.Contains(t, out, "20 PRINT ;2")
}

func TestEditDropsVariables(t *testing.T) {
	ex, env, mt := testCli()
	require.NoError(t, execCommand("XY=9", ex, env))
	require.NoError(t, execCommand("10 REM edit", ex, env))
	require.NoError(t, execCommand("PRINT ;XY", ex, env))
	assert.Contains(t, mt.Out.String(), "No such variable XY")
}

func TestQuitStopsTheLoop(t *testing.T) {
	ex, env, _ := testCli()
	err := execCommand("QUIT", ex, env)
	assert.ErrorIs(t, err, evaluator.ErrQuit)
}

func TestBlankLineIsIgnored(t *testing.T) {
	ex, env, mt := testCli()
	require.NoError(t, execCommand("   ", ex, env))
	assert.Empty(t, mt.Out.String())
}
