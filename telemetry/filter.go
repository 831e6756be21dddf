package telemetry

import (
	"fmt"
	"strconv"
	"strings"
)

// Record holds one reading per channel.
type Record []float64

// MalformedError reports a marked line whose payload does not parse.
type MalformedError struct {
	Format string
	Line   string
	Want   int
	Got    int
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s record %q: %v", e.Format, e.Line, e.Err)
	}
	return fmt.Sprintf("malformed %s record %q: got %d channels, want %d", e.Format, e.Line, e.Got, e.Want)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Filter matches lines against a single Format.
type Filter struct {
	f Format
}

func NewFilter(f Format) (*Filter, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &Filter{f: f}, nil
}

func (f *Filter) Format() Format { return f.f }

// Match returns ok=false for lines without the marker. Lines with the
// marker either produce a full Record or a *MalformedError.
func (f *Filter) Match(line string) (rec Record, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.Contains(line, f.f.Marker) {
		return nil, false, nil
	}

	fail := func(got int, err error) (Record, bool, error) {
		return nil, true, &MalformedError{Format: f.f.Name, Line: line, Want: f.f.Channels, Got: got, Err: err}
	}

	tokens, err := f.f.Extract.Extract(line)
	if err != nil {
		return fail(0, err)
	}
	if len(tokens) != f.f.Channels {
		return fail(len(tokens), nil)
	}

	rec = make(Record, len(tokens))
	for i, tok := range tokens {
		rec[i], err = strconv.ParseFloat(tok, 64)
		if err != nil {
			return fail(len(tokens), fmt.Errorf("channel %d: %w", i, err))
		}
	}
	return rec, true, nil
}
