//go:build !windows

package launcher

import (
	"fmt"
	"unicode/utf8"
)

// wcharT matches glibc/Unix wchar_t's width: 4 bytes, UCS-4.
type wcharT = int32

// encodeWChars converts s to a NUL-terminated UCS-4 buffer, the form
// CPython's C API expects for wchar_t* arguments on Unix.
func encodeWChars(s string) ([]wcharT, error) {
	out := make([]wcharT, 0, utf8.RuneCountInString(s)+1)

	for _, r := range s {
		if r == utf8.RuneError {
			return nil, fmt.Errorf("invalid utf-8 in %q", s)
		}

		out = append(out, wcharT(r))
	}

	return append(out, 0), nil
}
