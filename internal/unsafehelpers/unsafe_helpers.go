// Package unsafehelpers centralizes the unavoidable use of the `unsafe`
// package so the rest of rangestore stays auditable. Its one caller is
// pkg/gcworker, which views each scanned metadata value as a string without
// copying before splitting it into file names.
//
// Use ONLY inside this repository; these are not part of the public API.
//
// © 2025 rangestore authors. MIT License.
package unsafehelpers

import "unsafe"

// BytesToString views a byte slice as a string without allocating. The
// caller must guarantee b is never mutated for the lifetime of the returned
// string.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// StringToBytes reinterprets string data as a byte slice without copying.
// The slice must be treated as read-only: strings are immutable and the Go
// runtime may place them in read-only memory.
func StringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
