// Package telemetry recognises sensor records in device log output.
package telemetry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Extractor pulls the numeric payload tokens out of a line that carries a
// format's marker.
type Extractor interface {
	Extract(line string) ([]string, error)
}

// Format describes one telemetry record layout.
type Format struct {
	Name     string
	Marker   string
	Channels int
	Extract  Extractor
}

func (f Format) Validate() error {
	if f.Marker == "" {
		return errors.New("telemetry format: marker is required")
	}
	if f.Channels < 1 {
		return fmt.Errorf("telemetry format %s: channels must be positive", f.Name)
	}
	if f.Extract == nil {
		return fmt.Errorf("telemetry format %s: no extraction rule", f.Name)
	}
	return nil
}

// Window takes the text between Prefix and the last SuffixLen characters
// and splits it on whitespace.
type Window struct {
	Prefix    string
	SuffixLen int
}

func (w Window) Extract(line string) ([]string, error) {
	i := strings.Index(line, w.Prefix)
	if i < 0 {
		return nil, fmt.Errorf("missing %q", w.Prefix)
	}
	start := i + len(w.Prefix)
	end := len(line) - w.SuffixLen
	if end < start {
		return nil, errors.New("line too short for payload window")
	}
	return strings.Fields(line[start:end]), nil
}

// Labeled takes the last token after Separator, with any of the Trim
// characters removed from its end.
type Labeled struct {
	Separator string
	Trim      string
}

func (l Labeled) Extract(line string) ([]string, error) {
	i := strings.LastIndex(line, l.Separator)
	if i < 0 {
		return nil, fmt.Errorf("missing %q", l.Separator)
	}
	fields := strings.Fields(line[i+len(l.Separator):])
	if len(fields) == 0 {
		return nil, nil
	}
	v := strings.TrimRight(fields[len(fields)-1], l.Trim)
	if v == "" {
		return nil, nil
	}
	return []string{v}, nil
}

// Built-in formats emitted by the SX92xx proximity driver.
var (
	// SX92 is the per-config diff dump: `... SX92xx ... Diff 0..7: d0 d1 ... d7 <6 chars>`.
	SX92 = Format{
		Name:     "sx92",
		Marker:   "SX92",
		Channels: 8,
		Extract:  Window{Prefix: "Diff 0..7: ", SuffixLen: 6},
	}

	// DiffMean is the single averaged diff value: `DIFF_825c_mean: 12,`.
	DiffMean = Format{
		Name:     "diff_mean",
		Marker:   "DIFF_825c_mean",
		Channels: 1,
		Extract:  Labeled{Separator: ":", Trim: ",;."},
	}
)

var builtin = map[string]Format{
	SX92.Name:     SX92,
	DiffMean.Name: DiffMean,
}

// Lookup returns a built-in format by name.
func Lookup(name string) (Format, error) {
	f, ok := builtin[strings.ToLower(name)]
	if !ok {
		return Format{}, fmt.Errorf("unknown telemetry format %q (have %s)", name, strings.Join(Names(), ", "))
	}
	return f, nil
}

// Names lists the built-in format names.
func Names() []string {
	res := make([]string, 0, len(builtin))
	for name := range builtin {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}
