package persistence

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// LimitOffset converts a 1-based page into LIMIT/OFFSET values, clamping the page size.
func LimitOffset(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return pageSize, (page - 1) * pageSize
}
