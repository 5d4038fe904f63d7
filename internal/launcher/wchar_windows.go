//go:build windows

package launcher

import "golang.org/x/sys/windows"

// wcharT matches Windows wchar_t's width: 2 bytes, UTF-16.
type wcharT = uint16

// encodeWChars converts s to a NUL-terminated UTF-16 buffer, the form
// CPython's C API expects for wchar_t* arguments on Windows.
func encodeWChars(s string) ([]wcharT, error) {
	return windows.UTF16FromString(s)
}
