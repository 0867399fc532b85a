// Package utils holds the paging arithmetic shared by the HTTP handlers, the
// services and couponctl.
package utils

import "strconv"

// Page bounds for every list endpoint.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ClampPage reads page and page_size query values. Missing or malformed
// values take the defaults; the rest are clamped to page >= 1 and
// 1 <= size <= MaxPageSize.
func ClampPage(rawPage, rawSize string) (page, size int) {
	return max(intOr(rawPage, DefaultPage), 1), min(max(intOr(rawSize, DefaultPageSize), 1), MaxPageSize)
}

// Normalize is ClampPage for values that are already integers; a size <= 0
// means DefaultPageSize.
func Normalize(page, size int) (int, int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	return max(page, 1), min(size, MaxPageSize)
}

// Offset is the number of rows before page.
func Offset(page, size int) int {
	return (page - 1) * size
}

// TotalPages is ceil(total / size), or 0 when either is not positive.
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

func intOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
