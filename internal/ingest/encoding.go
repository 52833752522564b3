package ingest

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// resolveEncoding maps a configured encoding name onto a decoder. UTF-8 names return nil.
func resolveEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8", "utf-8-sig", "utf_8_sig":
		return nil, nil
	case "euc-kr", "euckr", "euc_kr", "cp949", "uhc", "ms949":
		// EUCKR decodes the full Unified Hangul Code range.
		return korean.EUCKR, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc, nil
}

// decode wraps r so it yields UTF-8.
func (l *Loader) decode(r io.Reader) io.Reader {
	if l.charset == nil {
		return r
	}
	return transform.NewReader(r, l.charset.NewDecoder())
}
