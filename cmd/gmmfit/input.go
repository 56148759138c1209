package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
)

func readCSV(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open data")
	}
	defer f.Close()
	X, err := parseCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return X, nil
}

// parseCSV reads numeric rows. A first row that does not parse is treated
// as a header and skipped.
func parseCSV(r io.Reader) (*mat.Dense, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var (
		values []float64
		cols   int
		rows   int
	)
	for line := 1; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row, err := parseRow(record)
		if err != nil {
			if rows == 0 && line == 1 {
				continue
			}
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if cols == 0 {
			cols = len(row)
		}
		values = append(values, row...)
		rows++
	}
	if rows == 0 {
		return nil, errors.ErrEmptyData
	}
	return mat.NewDense(rows, cols, values), nil
}

func parseRow(record []string) ([]float64, error) {
	row := make([]float64, len(record))
	for j, field := range record {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "column %d", j)
		}
		row[j] = v
	}
	return row, nil
}
