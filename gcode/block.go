package gcode

import (
	"errors"
	"strings"
)

type Block []Word

func (b Block) String() string {
	var sb strings.Builder
	for _, w := range b {
		sb.WriteString(w.String())
	}
	return sb.String()
}

func (b Block) Arg(w byte) (bool, float64) {
	for _, g := range b {
		if g.W == w {
			return true, g.Arg
		}
	}
	return false, 0
}

// HasMotion reports whether the block carries an axis word.
func (b Block) HasMotion() bool {
	for _, g := range b {
		if g.IsAxis() {
			return true
		}
	}
	return false
}

func (b Block) Validate() error {
	var checkWord [256]bool
	var checkModal [256]bool

	var m ModalGroup
	for _, g := range b {
		if !g.IsValid() {
			return errors.New("invalid word in block")
		}
		if g.W != 'G' && g.W != 'M' && checkWord[g.W] {
			return errors.New("word was repeated in a block: " + b.String())
		}
		checkWord[g.W] = true
		m = g.ModalGroup()
		if m != ModalGroupNone && m != ModalGroupNonModal && checkModal[m] {
			return errors.New("multiple words from same modal group: " + b.String())
		}
		checkModal[m] = true
	}

	return nil
}
