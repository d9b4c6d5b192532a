package domain

// PageRequest is a limit/offset pagination request with sane bounds.
type PageRequest struct {
	PageSize int
	Page     int
}

// Limit returns the effective page size (default 50, max 500).
func (p PageRequest) Limit() int {
	if p.PageSize <= 0 {
		return 50
	}
	if p.PageSize > 500 {
		return 500
	}
	return p.PageSize
}

// Offset returns the row offset for the requested page.
func (p PageRequest) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}
