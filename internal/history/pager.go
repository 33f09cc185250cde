package history

import "asistencia/internal/schedule"

// DefaultPageSize is used when a caller passes a non-positive size.
const DefaultPageSize = 10

// Page is one visible slice plus the metadata the UI captions with.
// From and To are 1-based inclusive; both are 0 when nothing is shown.
type Page struct {
	Items      []schedule.Decorated `json:"items"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalPages int                  `json:"total_pages"`
	Total      int                  `json:"total"`
	From       int                  `json:"from"`
	To         int                  `json:"to"`
}

// Paginate slices the filtered set. TotalPages is at least 1 even for an
// empty set, and the requested page is clamped into [1, TotalPages].
func Paginate(records []schedule.Decorated, page, size int) Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(records)
	totalPages := (total + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	from := (page-1)*size + 1
	to := page * size
	if to > total {
		to = total
	}
	if total == 0 {
		from, to = 0, 0
	}

	var items []schedule.Decorated
	if total > 0 {
		items = records[from-1 : to]
	}

	return Page{
		Items:      items,
		Page:       page,
		PageSize:   size,
		TotalPages: totalPages,
		Total:      total,
		From:       from,
		To:         to,
	}
}
