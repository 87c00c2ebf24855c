package lossdata

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// columnCount is the number of fields in every row: step, value A, value B.
const columnCount = 3

// Column names, in input order.
var columnNames = [columnCount]string{"step", "value_a", "value_b"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Sentinel parse errors. Every *ParseError matches ErrParse and one of the
// reason sentinels under errors.Is.
var (
	ErrParse       = errors.New("parse loss trace")
	ErrColumnCount = errors.New("wrong number of columns")
	ErrNotNumeric  = errors.New("field is not numeric")
	ErrMalformed   = errors.New("malformed csv")
)

// ParseError describes the row that failed a parse.
type ParseError struct {
	// Row is the zero-based index of the data row.
	Row int
	// Line is the one-based line number in the input.
	Line int
	// Column is the zero-based field index, or -1 when the whole row is at fault.
	Column int
	// Reason is a human-readable description.
	Reason string

	kind error
}

// Error implements error.
func (e *ParseError) Error() string {
	return fmt.Sprintf("row %d (line %d): %s", e.Row, e.Line, e.Reason)
}

// Is matches ErrParse and the specific reason sentinel.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse || target == e.kind
}

// Unwrap returns the reason sentinel.
func (e *ParseError) Unwrap() error {
	return e.kind
}

// ParseString parses a loss trace held in memory.
func ParseString(raw string) ([]LossRecord, error) {
	return Parse(strings.NewReader(raw))
}

// Parse reads comma-separated rows of (step, value A, value B) in file order.
// There is no header row. Blank lines are skipped and fields are trimmed.
// The first bad row aborts the parse with a *ParseError and no records.
func Parse(r io.Reader) ([]LossRecord, error) {
	br := bufio.NewReader(r)

	head, peekErr := br.Peek(len(utf8BOM))
	if peekErr == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	records := make([]LossRecord, 0)

	for row := 0; ; row++ {
		fields, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			return records, nil
		}

		if readErr != nil {
			return nil, malformedError(row, readErr)
		}

		line, _ := reader.FieldPos(0)

		rec, rowErr := parseRow(fields)
		if rowErr != nil {
			rowErr.Row = row
			rowErr.Line = line

			return nil, rowErr
		}

		records = append(records, rec)
	}
}

func parseRow(fields []string) (LossRecord, *ParseError) {
	if len(fields) != columnCount {
		return LossRecord{}, &ParseError{
			Column: -1,
			Reason: fmt.Sprintf("expected %d columns, got %d", columnCount, len(fields)),
			kind:   ErrColumnCount,
		}
	}

	var values [columnCount]float64

	for i, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return LossRecord{}, &ParseError{
				Column: i,
				Reason: fmt.Sprintf("%s %q is not a number", columnNames[i], field),
				kind:   ErrNotNumeric,
			}
		}

		values[i] = v
	}

	return LossRecord{Step: values[0], ValueA: values[1], ValueB: values[2]}, nil
}

func malformedError(row int, err error) *ParseError {
	pe := &ParseError{Row: row, Column: -1, Reason: err.Error(), kind: ErrMalformed}

	var csvErr *csv.ParseError
	if errors.As(err, &csvErr) {
		pe.Line = csvErr.StartLine
		pe.Reason = csvErr.Err.Error()
	}

	return pe
}
