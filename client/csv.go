package client

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// ParseCSV reads integer values from CSV data. The first record is the
// header line and is skipped. Values are returned row by row, left to right.
func ParseCSV(r io.Reader) ([]*big.Int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csv data is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	var values []*big.Int
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("line %d: %d values for %d columns", line, len(record), len(header))
		}
		for col, field := range record {
			v, ok := new(big.Int).SetString(strings.TrimSpace(field), 10)
			if !ok {
				return nil, fmt.Errorf("line %d column %q: %q is not an integer", line, header[col], field)
			}
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil, errors.New("csv data has no rows")
	}
	return values, nil
}
