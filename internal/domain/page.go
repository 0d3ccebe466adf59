package domain

const (
	DefaultPageSize int32 = 20
	MaxPageSize     int32 = 100
)

// NormalizePage clamps page to at least 1 and pageSize to 1..MaxPageSize.
func NormalizePage(page, pageSize int32) (int32, int32) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// PageOffset is the number of rows before page. It is computed in int64 so
// large page numbers cannot wrap.
func PageOffset(page, pageSize int32) int64 {
	page, pageSize = NormalizePage(page, pageSize)
	return int64(page-1) * int64(pageSize)
}
