package reminders

import "time"

// Status is where a reminder call is in its lifecycle
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type Reminder struct {
	ID          int       `json:"id"`
	UserID      int       `json:"user_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	PhoneNumber string    `json:"phone_number"`
	DateTime    time.Time `json:"date_time"`
	Timezone    string    `json:"timezone"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Create is the body of POST /reminders
type Create struct {
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	PhoneNumber string    `json:"phone_number"`
	DateTime    time.Time `json:"date_time"`
	Timezone    string    `json:"timezone"`
}

// Update is a partial update; nil fields are left untouched
type Update struct {
	Title       *string    `json:"title,omitempty"`
	Message     *string    `json:"message,omitempty"`
	PhoneNumber *string    `json:"phone_number,omitempty"`
	DateTime    *time.Time `json:"date_time,omitempty"`
	Timezone    *string    `json:"timezone,omitempty"`
	Status      *Status    `json:"status,omitempty"`
}

// Empty reports whether the update changes nothing
func (u Update) Empty() bool {
	return u.Title == nil && u.Message == nil && u.PhoneNumber == nil &&
		u.DateTime == nil && u.Timezone == nil && u.Status == nil
}

// Page is one slice of the user's reminders plus the overall match count
type Page struct {
	Items []Reminder `json:"items"`
	Total int        `json:"total"`
}

type Stats struct {
	Total     int `json:"total"`
	Scheduled int `json:"scheduled"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// ListOptions filter and paginate GET /reminders
type ListOptions struct {
	Skip   int
	Limit  int
	Status Status
	Search string
}
