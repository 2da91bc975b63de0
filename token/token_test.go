package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupKeyword(t *testing.T) {

	for k, v := range keywords {
		if v != LookupKeyword(k) {
			t.Errorf("LookupKeyword gave %d, wanted %d", LookupKeyword(k), v)
		}
	}

	assert.EqualValues(t, 0, LookupKeyword("notreallyakeyword"))
	assert.EqualValues(t, XIf, LookupKeyword("if"), "keywords match either case")
}

func TestName(t *testing.T) {
	tests := []struct {
		tok  byte
		want string
	}{
		{Print, "PRINT"},
		{SingleIf, "IF"},
		{BlockIf, "IF"},
		{When, "WHEN"},
		{LE, "<="},
		{Lsr, ">>>"},
		{SmallInt, ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Name(tt.tok))
	}
}

func TestUnresolvePairs(t *testing.T) {
	tests := []struct {
		resolved byte
		want     byte
	}{
		{IntVar, XVar},
		{StrVar, XVar},
		{ArrayVar, XVar},
		{FnProcCall, XFnProcCall},
		{LineNum, XLineNum},
		{SingleIf, XIf},
		{BlockIf, XIf},
		{Case, XCase},
		{While, XWhile},
		{Print, Print}, // no X partner
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Unresolve(tt.resolved))

		// resolution never changes the operand layout
		assert.Equal(t, OperandLen(tt.resolved), OperandLen(tt.want))
	}
}

func TestOperandLen(t *testing.T) {
	assert.Equal(t, 1, OperandLen(SmallInt))
	assert.Equal(t, 4, OperandLen(IntLit))
	assert.Equal(t, 8, OperandLen(FloatLit))
	assert.Equal(t, 2, OperandLen(StringLit))
	assert.Equal(t, AddrSize+1, OperandLen(XVar))
	assert.Equal(t, LineNumSize+AddrSize, OperandLen(XLineNum))
	assert.Equal(t, 2*AddrSize, OperandLen(XIf))
	assert.Equal(t, 0, OperandLen(Print))
	assert.Equal(t, 0, OperandLen(Colon))
}
