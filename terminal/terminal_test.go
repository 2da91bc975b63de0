package terminal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Encode(t *testing.T) {
	tests := []struct {
		inp string
		exp string
	}{
		{inp: "plain ascii", exp: "plain ascii"},
		{inp: "\xa3100", exp: "£100"},
		{inp: "caf\xe9", exp: "café"},
		{inp: "", exp: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.exp, encode(tt.inp))
	}
}
