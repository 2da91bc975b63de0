package berrors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextForError(t *testing.T) {
	tests := []struct {
		inp int
		exp string
	}{
		{inp: NextWithoutFor, exp: "NEXT without FOR"},
		{inp: Syntax, exp: "Syntax error"},
		{inp: ReturnWoGosub, exp: "RETURN without GOSUB"},
		{inp: OutOfData, exp: "Out of DATA"},
		{inp: Range, exp: "Number out of range"},
		{inp: OutOfMemory, exp: "No room"},
		{inp: DivByZero, exp: "Division by zero"},
		{inp: Escape, exp: "Escape"},
		{inp: Silly, exp: "Silly"},
		{inp: LineTooLong, exp: "Line too long"},
		{inp: Unsupported, exp: "Unsupported on this platform"},
		{inp: 2000, exp: "Unprintable error"},
	}

	for _, tt := range tests {
		rc := TextForError(tt.inp)

		assert.EqualValuesf(t, tt.exp, rc, "TextForError(%d) got %s, wanted %s", tt.inp, rc, tt.exp)
	}
}

func TestBasicError(t *testing.T) {
	err := New(DivByZero)
	assert.Equal(t, "Division by zero", err.Error())
	assert.Equal(t, DivByZero, err.Code)

	err.Line = 120
	assert.Equal(t, "Division by zero at line 120", err.Error())

	err = NewMsg(UserError+4, "oops")
	assert.Equal(t, "oops", err.Msg)
	assert.Equal(t, UserError+4, err.Code)
}
