// Package transformer provides the pooled row container passed from the CSV
// parser to the loader, plus per-cell transforms applied before coercion.
package transformer

import "sync"

// Row is a pooled container holding the raw cells of one CSV record.
//
// Ownership contract:
//   - Exactly one goroutine "owns" a Row at a time.
//   - A Row may be passed downstream via channels (ownership transfer).
//   - The final consumer (the loader) calls Free() once it no longer reads
//     r.V.
//
// During ctx cancellation the parser may still be unwinding while the loader
// drains. Rows seen on that path are dropped instead of re-pooled so a reused
// Row is never written while someone else reads it.
type Row struct {
	V    []string
	Line int   // 1-based physical line where the record starts
	Err  error // set when the record could not be parsed; V is empty then
}

var rowPool sync.Pool

// GetRow returns a pooled Row with length colCount. All cells are empty.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]string, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = ""
		}
		r.Line = 0
		r.Err = nil
		return r
	}
	return &Row{V: make([]string, colCount)}
}

// Free returns the Row to the pool.
// Call this ONLY when no other goroutine can observe r or r.V.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop discards the Row WITHOUT returning it to the pool.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
	r.Err = nil
}
