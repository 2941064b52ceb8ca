package csv

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"csvingest/internal/transformer"
)

func readAll(t *testing.T, rd *Reader) []*transformer.Row {
	t.Helper()
	var rows []*transformer.Row
	for {
		row, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return rows
		}
		if err != nil {
			t.Fatalf("Next() err=%v", err)
		}
		rows = append(rows, row)
	}
}

func TestNewReader_HeaderAndRows(t *testing.T) {
	t.Parallel()

	in := "\uFEFF First Name ,Email\nAda,ada@x.io\n\"Turing, Alan\",alan@x.io\n"
	rd, err := NewReader(strings.NewReader(in), Options{})
	if err != nil {
		t.Fatalf("NewReader() err=%v", err)
	}
	if got, want := rd.Header(), []string{"First Name", "Email"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Header() = %q, want %q", got, want)
	}

	rows := readAll(t, rd)
	if len(rows) != 2 {
		t.Fatalf("rows=%d, want 2", len(rows))
	}
	if got := rows[1].V; !reflect.DeepEqual(got, []string{"Turing, Alan", "alan@x.io"}) {
		t.Fatalf("row 2 = %q", got)
	}
	if rows[0].Line != 2 || rows[1].Line != 3 {
		t.Fatalf("lines = %d,%d, want 2,3", rows[0].Line, rows[1].Line)
	}
}

func TestNewReader_RowsDoNotAlias(t *testing.T) {
	t.Parallel()

	rd, err := NewReader(strings.NewReader("a\n1\n2\n"), Options{})
	if err != nil {
		t.Fatalf("NewReader() err=%v", err)
	}
	rows := readAll(t, rd)
	if rows[0].V[0] != "1" || rows[1].V[0] != "2" {
		t.Fatalf("rows alias the reused record: %q %q", rows[0].V, rows[1].V)
	}
}

func TestNewReader_VariableFieldCounts(t *testing.T) {
	t.Parallel()

	rd, err := NewReader(strings.NewReader("a,b,c\n1,2\n1,2,3,4\n"), Options{})
	if err != nil {
		t.Fatalf("NewReader() err=%v", err)
	}
	rows := readAll(t, rd)
	if len(rows[0].V) != 2 || len(rows[1].V) != 4 {
		t.Fatalf("field counts = %d,%d, want 2,4", len(rows[0].V), len(rows[1].V))
	}
}

func TestNewReader_Empty(t *testing.T) {
	t.Parallel()

	rd, err := NewReader(strings.NewReader(""), Options{})
	if err != nil {
		t.Fatalf("NewReader() err=%v", err)
	}
	if rd.Header() != nil {
		t.Fatalf("Header() = %q, want nil", rd.Header())
	}
	if _, err := rd.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("Next() err=%v, want EOF", err)
	}
}

func TestNewReader_UnterminatedQuoteIsLazy(t *testing.T) {
	t.Parallel()

	rd, err := NewReader(strings.NewReader("a,b\n1,2\n3,\"open\n"), Options{})
	if err != nil {
		t.Fatalf("NewReader() err=%v", err)
	}
	rows := readAll(t, rd)
	if len(rows) != 2 {
		t.Fatalf("rows=%d, want 2", len(rows))
	}
	if rows[1].Err != nil || len(rows[1].V) != 2 || !strings.HasPrefix(rows[1].V[1], "open") {
		t.Fatalf("row 2 = %q err %v, want the quoted field to run to EOF", rows[1].V, rows[1].Err)
	}
}

func TestSniff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want rune
	}{
		{name: "comma", in: "a,b,c\n1;2;3;4;5\n", want: ','},
		{name: "semicolon", in: "a;b;c\n", want: ';'},
		{name: "tab", in: "a\tb\n", want: '\t'},
		{name: "pipe", in: "a|b|c", want: '|'},
		{name: "quoted_commas_ignored", in: "\"x,y,z\";b\n", want: ';'},
		{name: "none_defaults_comma", in: "single\n", want: ','},
		{name: "tie_prefers_comma", in: "a,b;c\n", want: ','},
		{name: "empty", in: "", want: ','},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Sniff([]byte(tt.in)); got != tt.want {
				t.Fatalf("Sniff(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewReader_SniffsSemicolon(t *testing.T) {
	t.Parallel()

	rd, err := NewReader(strings.NewReader("name;city\nAda;London\n"), Options{})
	if err != nil {
		t.Fatalf("NewReader() err=%v", err)
	}
	if rd.Comma() != ';' {
		t.Fatalf("Comma() = %q, want ';'", rd.Comma())
	}
	rows := readAll(t, rd)
	if !reflect.DeepEqual(rows[0].V, []string{"Ada", "London"}) {
		t.Fatalf("row = %q", rows[0].V)
	}
}

func TestNewReader_ExplicitComma(t *testing.T) {
	t.Parallel()

	rd, err := NewReader(strings.NewReader("a;b,c\n"), Options{Comma: ','})
	if err != nil {
		t.Fatalf("NewReader() err=%v", err)
	}
	if got := rd.Header(); !reflect.DeepEqual(got, []string{"a;b", "c"}) {
		t.Fatalf("Header() = %q", got)
	}
}

func TestStreamRows_PendingFirst(t *testing.T) {
	t.Parallel()

	rd, err := NewReader(strings.NewReader("a\n1\n2\n3\n"), Options{})
	if err != nil {
		t.Fatalf("NewReader() err=%v", err)
	}
	first, _ := rd.Next()

	out := make(chan *transformer.Row, 8)
	if err := StreamRows(context.Background(), rd, []*transformer.Row{first}, out); err != nil {
		t.Fatalf("StreamRows() err=%v", err)
	}
	close(out)

	var got []string
	for r := range out {
		got = append(got, r.V[0])
	}
	if !reflect.DeepEqual(got, []string{"1", "2", "3"}) {
		t.Fatalf("streamed %q", got)
	}
}

func TestStreamRows_Cancel(t *testing.T) {
	t.Parallel()

	rd, err := NewReader(strings.NewReader("a\n1\n2\n3\n"), Options{})
	if err != nil {
		t.Fatalf("NewReader() err=%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan *transformer.Row) // nobody reads

	done := make(chan error, 1)
	go func() { done <- StreamRows(ctx, rd, nil, out) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("StreamRows() err=%v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("StreamRows did not return after cancel")
	}
}
