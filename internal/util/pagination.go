package util

import "strconv"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

func Calculate(page, size int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}
	offset = (page - 1) * size
	return offset, size
}

// ParsePage reads page and size query values. ok is false when page is absent.
func ParsePage(pageRaw, sizeRaw string) (page, size int, ok bool) {
	if pageRaw == "" {
		return 0, 0, false
	}
	page, _ = strconv.Atoi(pageRaw)
	if page < 1 {
		page = 1
	}
	size, _ = strconv.Atoi(sizeRaw)
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}
	return page, size, true
}
