package gcode

import (
	"strconv"
	"strings"
)

type Word struct {
	W   byte
	Arg float64
}

// G returns a G-word.
func G(arg float64) Word { return Word{W: 'G', Arg: arg} }

// AxisWord returns a word moving the named axis.
func AxisWord(axis byte, v float64) Word {
	if axis >= 'a' && axis <= 'z' {
		axis -= 'a' - 'A'
	}
	return Word{W: axis, Arg: v}
}

func (w Word) IsAxis() bool {
	switch w.W {
	case 'X', 'Y', 'Z':
		return true
	}
	return false
}

func (w Word) IsValid() bool {
	return w.W >= 'A' && w.W <= 'Z'
}

// formatFloat uses 4 decimals, enough for the 0.1um steps stages report.
func formatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	s = strings.TrimRight(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

func (w Word) String() string {
	return string(w.W) + formatFloat(w.Arg, 4)
}
