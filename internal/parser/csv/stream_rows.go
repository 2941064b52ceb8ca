// Package csv reads delimited text into pooled transformer.Row values.
package csv

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"csvingest/internal/transformer"
)

// Options controls NewReader.
type Options struct {
	// Comma is the field delimiter. Zero means sniff it from the header line.
	Comma rune
}

// candidateDelimiters are tried by Sniff in order; ties keep the earlier one.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// Reader wraps encoding/csv with the settings used for loosely formatted
// exports: variable field counts, lazy quotes, BOM stripping and delimiter
// sniffing.
type Reader struct {
	cr     *csv.Reader
	header []string
	comma  rune
}

// NewReader sniffs the delimiter (unless opt.Comma is set) and reads the
// header record. An empty input yields a Reader with a nil Header and no
// rows; deciding whether that is an error is up to the caller.
func NewReader(r io.Reader, opt Options) (*Reader, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	comma := opt.Comma
	if comma == 0 {
		peek, err := br.Peek(br.Size())
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return nil, fmt.Errorf("csv: sniff delimiter: %w", err)
		}
		comma = Sniff(peek)
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	rd := &Reader{cr: cr, comma: comma}

	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return rd, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}

	rd.header = make([]string, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		rd.header[i] = strings.TrimSpace(h)
	}
	return rd, nil
}

// Header returns the trimmed header cells, or nil for an empty input.
func (r *Reader) Header() []string { return r.header }

// Comma returns the delimiter in use.
func (r *Reader) Comma() rune { return r.comma }

// Next returns the next data record as a pooled Row.
//
// A malformed record is returned as a Row with Err set so the loader can
// count it as failed. Any other error (I/O, decoding) is returned as err and
// ends the stream. At the end of input Next returns (nil, io.EOF).
func (r *Reader) Next() (*transformer.Row, error) {
	if r.header == nil {
		return nil, io.EOF
	}

	rec, err := r.cr.Read()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			row := transformer.GetRow(0)
			row.Line = perr.StartLine
			row.Err = perr
			return row, nil
		}
		return nil, err
	}

	row := transformer.GetRow(len(rec))
	copy(row.V, rec)
	row.Line, _ = r.cr.FieldPos(0)
	return row, nil
}

// StreamRows sends pending rows first (usually the sample window that was
// already read), then every remaining record, to out. It does not close
// out.
//
// NOTE on cancellation:
// On ctx cancellation in-flight rows are dropped, not re-pooled, because the
// consumer may still be reading rows it already received.
func StreamRows(ctx context.Context, r *Reader, pending []*transformer.Row, out chan<- *transformer.Row) error {
	send := func(row *transformer.Row) error {
		select {
		case out <- row:
			return nil
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}

	for i, row := range pending {
		if err := send(row); err != nil {
			for _, rest := range pending[i+1:] {
				rest.Drop()
			}
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := send(row); err != nil {
			return err
		}
	}
}

// Sniff picks the candidate delimiter that occurs most often outside quotes
// on the first line of sample. It defaults to ','.
func Sniff(sample []byte) rune {
	counts := make(map[rune]int, len(candidateDelimiters))
	inQuotes := false
	for _, c := range string(sample) {
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		if c == '\n' || c == '\r' {
			break
		}
		counts[c]++
	}

	best, bestN := ',', 0
	for _, d := range candidateDelimiters {
		if counts[d] > bestN {
			best, bestN = d, counts[d]
		}
	}
	return best
}
