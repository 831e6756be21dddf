// Package stats reduces a batch of telemetry records to per-channel
// statistics.
package stats

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/mastercactapus/proxscan/telemetry"
)

var (
	ErrEmptyBatch  = errors.New("empty sample batch")
	ErrRaggedBatch = errors.New("records have inconsistent channel counts")
)

// Summary holds the mean and sample standard deviation of each channel.
type Summary struct {
	N       int       `json:"n"`
	Means   []float64 `json:"means"`
	StdDevs []float64 `json:"stddevs"`
}

// Summarize computes unweighted per-channel statistics. StdDevs are zero for
// a single-record batch.
func Summarize(batch []telemetry.Record) (Summary, error) {
	if len(batch) == 0 {
		return Summary{}, ErrEmptyBatch
	}
	width := len(batch[0])
	if width == 0 {
		return Summary{}, fmt.Errorf("%w: record 0 has no channels", ErrRaggedBatch)
	}
	for i, rec := range batch {
		if len(rec) != width {
			return Summary{}, fmt.Errorf("%w: record %d has %d, want %d", ErrRaggedBatch, i, len(rec), width)
		}
	}

	s := Summary{
		N:       len(batch),
		Means:   make([]float64, width),
		StdDevs: make([]float64, width),
	}
	col := make([]float64, len(batch))
	for ch := 0; ch < width; ch++ {
		for i, rec := range batch {
			col[i] = rec[ch]
		}
		if len(col) < 2 {
			s.Means[ch] = col[0]
			continue
		}
		s.Means[ch], s.StdDevs[ch] = stat.MeanStdDev(col, nil)
	}
	return s, nil
}

// Label names channel i the way result logs and exports refer to it.
func Label(i int) string { return fmt.Sprintf("Config_%d", i+1) }

// Channel returns the label and mean of channel i.
func (s Summary) Channel(i int) (string, float64) { return Label(i), s.Means[i] }

// Fields flattens the means into alternating label/value pairs for
// structured logging.
func (s Summary) Fields() []interface{} {
	res := make([]interface{}, 0, 2*len(s.Means))
	for i, m := range s.Means {
		res = append(res, Label(i), m)
	}
	return res
}
