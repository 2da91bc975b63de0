package builtins

import (
	"strconv"
	"strings"

	"github.com/stardot/MatrixBrandy-sub002/object"
)

// The @% format word, byte by byte: b0 is the print field width, b1 the
// digit count, b2 selects the format (0 general, 1 exponent, 2 fixed)
// and bit 0 of b3 makes STR$ honour the word too.
const (
	defaultFormat = 0x90A
	strUsesFormat = 0x01000000
)

// Width extracts the print field width from a format word.
func Width(format int32) int {
	return int(format) & 0xFF
}

// FormatNum renders a number under a format word. Field padding is the
// printer's job, not done here.
func FormatNum(format int32, v object.Value) string {
	digits := int(format>>8) & 0xFF
	if digits == 0 || digits > 17 {
		digits = 9
	}
	mode := int(format>>16) & 0xFF

	switch mode {
	case 1:
		return expForm(v.AsFloat(), digits)
	case 2:
		dp := digits
		if dp > 10 {
			dp = 10
		}
		return strconv.FormatFloat(v.AsFloat(), 'f', dp, 64)
	}

	// general: integers print as themselves, floats fall to exponent
	// form when the digits run out
	if v.Kind != object.FloatK {
		return strconv.FormatInt(v.I, 10)
	}
	f := v.F
	if f == float64(int64(f)) && f < 1e15 && f > -1e15 {
		s := strconv.FormatFloat(f, 'g', digits, 64)
		if !strings.ContainsAny(s, "eE") {
			return s
		}
	}
	s := strconv.FormatFloat(f, 'g', digits, 64)
	return tidyExp(s)
}

// FormatHex renders the ~ form, uppercase with no prefix.
func FormatHex(v object.Value) (string, error) {
	n, err := v.AsInt64()
	if err != nil {
		return "", err
	}
	if n >= -0x80000000 && n <= 0xFFFFFFFF {
		return strings.ToUpper(strconv.FormatUint(uint64(uint32(n)), 16)), nil
	}
	return strings.ToUpper(strconv.FormatUint(uint64(n), 16)), nil
}

func expForm(f float64, digits int) string {
	return tidyExp(strconv.FormatFloat(f, 'e', digits-1, 64))
}

// tidyExp turns Go's 1.5e+09 into BASIC's 1.5E9.
func tidyExp(s string) string {
	s = strings.ToUpper(s)
	i := strings.IndexByte(s, 'E')
	if i < 0 {
		return s
	}
	mant, exp := s[:i], s[i+1:]
	neg := false
	switch exp[0] {
	case '+':
		exp = exp[1:]
	case '-':
		neg = true
		exp = exp[1:]
	}
	exp = strings.TrimLeft(exp, "0")
	if exp == "" {
		exp = "0"
	}
	if neg {
		exp = "-" + exp
	}
	return mant + "E" + exp
}

// ParseNum reads a leading number from text, the way VAL and INPUT do.
// Missing numbers read as integer zero. The & and % literal prefixes
// are honoured.
func ParseNum(s string) (object.Value, int) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	start := i

	if i < len(s) && s[i] == '&' {
		j := i + 1
		for j < len(s) && isHex(s[j]) {
			j++
		}
		if j > i+1 {
			u, err := strconv.ParseUint(s[i+1:j], 16, 64)
			if err == nil {
				return hexVal(u, j-i-1), j
			}
		}
		return object.IntVal(0), start
	}

	neg := false
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		neg = s[i] == '-'
		i++
	}
	d := i
	for d < len(s) && s[d] >= '0' && s[d] <= '9' {
		d++
	}
	isFloat := false
	if d < len(s) && s[d] == '.' {
		isFloat = true
		d++
		for d < len(s) && s[d] >= '0' && s[d] <= '9' {
			d++
		}
	}
	if d < len(s) && (s[d] == 'E' || s[d] == 'e') {
		j := d + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && s[j] >= '0' && s[j] <= '9' {
			isFloat = true
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			d = j
		}
	}
	if d == i || (isFloat && d == i+1) {
		return object.IntVal(0), start
	}
	text := s[i:d]
	if !isFloat {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			if neg {
				n = -n
			}
			if n >= -0x80000000 && n <= 0x7FFFFFFF {
				return object.IntVal(int32(n)), d
			}
			return object.Int64Val(n), d
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return object.IntVal(0), start
	}
	if neg {
		f = -f
	}
	return object.FloatVal(f), d
}

func hexVal(u uint64, ndigits int) object.Value {
	if ndigits <= 8 {
		return object.IntVal(int32(uint32(u)))
	}
	return object.Int64Val(int64(u))
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}
