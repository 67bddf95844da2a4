package reminders

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Offset converts a 1-based page number into a skip value
func Offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * clampPageSize(pageSize)
}

// Pages returns how many pages total items fill, at least 1
func Pages(total, pageSize int) int {
	size := clampPageSize(pageSize)
	if total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

func clampPageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// Summarize counts items per status, e.g. for the page currently shown
func Summarize(items []Reminder) Stats {
	s := Stats{Total: len(items)}
	for _, r := range items {
		switch r.Status {
		case StatusScheduled:
			s.Scheduled++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}
