package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"go.uber.org/multierr"

	"github.com/mastercactapus/proxscan/scan"
	"github.com/mastercactapus/proxscan/stats"
)

// writeCSV writes one row per point with the channel means.
func writeCSV(w io.Writer, res *scan.Result) error {
	channels := 0
	for _, p := range res.Points {
		if n := len(p.Summary.Means); n > channels {
			channels = n
		}
	}

	cw := csv.NewWriter(w)
	header := []string{"index", "position_mm", "outcome", "samples", "gap"}
	for i := 0; i < channels; i++ {
		header = append(header, stats.Label(i))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, p := range res.Points {
		row := []string{
			strconv.Itoa(p.Index),
			strconv.FormatFloat(p.Position, 'f', 4, 64),
			p.Outcome.String(),
			strconv.Itoa(p.Samples),
			strconv.FormatBool(p.Gap),
		}
		for i := 0; i < channels; i++ {
			if i < len(p.Summary.Means) {
				row = append(row, strconv.FormatFloat(p.Summary.Means[i], 'f', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportCSVFile(name string, res *scan.Result) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	return writeCSV(f, res)
}
