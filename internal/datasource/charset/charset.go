// Package charset resolves the text encoding of an input file from an ordered
// fallback chain and wraps readers so downstream code always sees UTF-8.
//
// Chain entries are WHATWG encoding labels ("utf-8", "windows-1252",
// "iso-8859-1", "utf-16le", ...) resolved through htmlindex, plus the special
// entry "replace", which accepts anything and substitutes U+FFFD for invalid
// UTF-8 sequences.
package charset

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

const (
	UTF8    = "utf-8"
	Replace = "replace"
)

// DefaultFallbacks is the chain used when none is configured.
var DefaultFallbacks = []string{UTF8, "windows-1252", Replace}

// ErrUnknownEncoding is returned for chain entries htmlindex cannot resolve.
var ErrUnknownEncoding = errors.New("charset: unknown encoding")

// EncodingError reports that no entry of the chain could decode the input.
type EncodingError struct {
	Path  string
	Tried []string
	Err   error // last decode or read failure, may be nil
}

func (e *EncodingError) Error() string {
	msg := fmt.Sprintf("encoding: %s: no encoding in [%s] decodes the file", e.Path, strings.Join(e.Tried, ", "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EncodingError) Unwrap() error { return e.Err }

// OpenFunc opens a fresh reader over the whole input. Detect calls it once
// per chain entry it tries.
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// Detect returns the canonical name of the first chain entry that decodes the
// entire input without error. I/O failures while opening or reading abort
// detection and are returned as-is; exhausting the chain yields an
// *EncodingError.
func Detect(ctx context.Context, path string, open OpenFunc, chain []string) (string, error) {
	if len(chain) == 0 {
		chain = DefaultFallbacks
	}

	tried := make([]string, 0, len(chain))
	var lastErr error
	for _, label := range chain {
		name := Canonical(label)
		tried = append(tried, name)

		if name == Replace {
			return Replace, nil
		}

		enc, err := lookup(name)
		if err != nil {
			lastErr = err
			continue
		}

		ok, err := decodes(ctx, open, enc)
		if err != nil {
			return "", err
		}
		if ok {
			return name, nil
		}
	}
	return "", &EncodingError{Path: path, Tried: tried, Err: lastErr}
}

// NewReader wraps r so it yields UTF-8 for the named encoding (a name
// returned by Detect).
func NewReader(r io.Reader, name string) (io.Reader, error) {
	switch name = Canonical(name); name {
	case UTF8:
		return r, nil
	case Replace:
		rd, _ := NewReplacingReader(r)
		return rd, nil
	}
	enc, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// Replacements counts the invalid byte sequences a replacing reader has
// turned into U+FFFD. It is safe to read while the reader is in use.
type Replacements struct {
	n atomic.Int64
}

// Count returns the substitutions made so far.
func (c *Replacements) Count() int64 { return c.n.Load() }

// NewReplacingReader wraps r so every invalid UTF-8 byte becomes U+FFFD.
// Valid input, including literal U+FFFD, passes through unchanged and is not
// counted.
func NewReplacingReader(r io.Reader) (io.Reader, *Replacements) {
	c := &Replacements{}
	return transform.NewReader(r, &replacer{count: c}), c
}

var replacement = []byte(string(utf8.RuneError))

type replacer struct {
	transform.NopResetter
	count *Replacements
}

func (t *replacer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		b := src[nSrc]
		if b < utf8.RuneSelf {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = b
			nDst++
			nSrc++
			continue
		}
		if !atEOF && !utf8.FullRune(src[nSrc:]) {
			return nDst, nSrc, transform.ErrShortSrc
		}
		out := src[nSrc:]
		r, size := utf8.DecodeRune(out)
		out = out[:size]
		if r == utf8.RuneError && size == 1 {
			out = replacement
		}
		if nDst+len(out) > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], out)
		nSrc += size
		if r == utf8.RuneError && size == 1 {
			t.count.n.Add(1)
		}
	}
	return nDst, nSrc, nil
}

// Canonical normalizes a chain label: lowercase, trimmed, with the common
// aliases of UTF-8 folded to "utf-8". Other labels resolve to their
// htmlindex name when known.
func Canonical(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	switch l {
	case "utf-8", "utf8":
		return UTF8
	case Replace:
		return Replace
	}
	enc, err := htmlindex.Get(l)
	if err != nil {
		return l
	}
	if name, err := htmlindex.Name(enc); err == nil {
		return name
	}
	return l
}

// Known reports whether label can appear in a fallback chain.
func Known(label string) bool {
	name := Canonical(label)
	if name == UTF8 || name == Replace {
		return true
	}
	_, err := lookup(name)
	return err == nil
}

// lookup returns nil for UTF-8, which is validated directly.
func lookup(name string) (encoding.Encoding, error) {
	if name == UTF8 {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	return enc, nil
}

// decodes reports whether the whole input is valid in enc. A nil enc means
// strict UTF-8. For other encodings a decoded U+FFFD counts as failure.
func decodes(ctx context.Context, open OpenFunc, enc encoding.Encoding) (bool, error) {
	rc, err := open(ctx)
	if err != nil {
		return false, err
	}
	defer rc.Close()

	if enc == nil {
		return validUTF8(rc)
	}

	br := bufio.NewReader(transform.NewReader(rc, enc.NewDecoder()))
	for {
		r, _, err := br.ReadRune()
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if r == utf8.RuneError {
			return false, nil
		}
	}
}

// validUTF8 scans r in chunks, carrying an incomplete trailing rune over to
// the next chunk.
func validUTF8(r io.Reader) (bool, error) {
	buf := make([]byte, 64*1024)
	carry := 0
	for {
		n, err := r.Read(buf[carry:])
		n += carry
		carry = 0

		chunk := buf[:n]
		for len(chunk) > 0 {
			if chunk[0] < utf8.RuneSelf {
				chunk = chunk[1:]
				continue
			}
			if !utf8.FullRune(chunk) {
				if err == nil {
					carry = copy(buf, chunk)
					break
				}
				return false, nil
			}
			rn, size := utf8.DecodeRune(chunk)
			if rn == utf8.RuneError && size == 1 {
				return false, nil
			}
			chunk = chunk[size:]
		}

		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
	}
}
