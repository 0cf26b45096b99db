package inboxtui

import (
	"bytes"
	"io"
)

// Terminal focus reporting (DEC mode 1004). While enabled the terminal sends
// focusIn and focusOut on the input stream.
const (
	focusReportingOn  = "\x1b[?1004h"
	focusReportingOff = "\x1b[?1004l"
)

var (
	focusIn  = []byte("\x1b[I")
	focusOut = []byte("\x1b[O")
)

// focusReader strips focus reports from terminal input and records them in
// vis. Everything else passes through unchanged.
type focusReader struct {
	r   io.Reader
	vis *Visibility
}

func newFocusReader(r io.Reader, vis *Visibility) *focusReader {
	return &focusReader{r: r, vis: vis}
}

func (f *focusReader) Read(p []byte) (int, error) {
	for {
		n, err := f.r.Read(p)
		if n == 0 {
			return 0, err
		}
		n = f.filter(p[:n])
		// A read made only of focus reports has nothing for the caller.
		if n > 0 || err != nil {
			return n, err
		}
	}
}

// filter removes focus reports from buf in place and returns the new length.
func (f *focusReader) filter(buf []byte) int {
	w := 0
	for i := 0; i < len(buf); {
		switch {
		case bytes.HasPrefix(buf[i:], focusIn):
			f.vis.Set(true)
			i += len(focusIn)
		case bytes.HasPrefix(buf[i:], focusOut):
			f.vis.Set(false)
			i += len(focusOut)
		default:
			buf[w] = buf[i]
			w++
			i++
		}
	}
	return w
}
