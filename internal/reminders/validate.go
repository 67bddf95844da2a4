package reminders

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/dvcrn/callme-client/internal/validate"
	"github.com/nyaruka/phonenumbers"
)

const (
	MaxTitleLength   = 100
	MaxMessageLength = 500

	defaultRegion = "US"
)

var utcOffsetPattern = regexp.MustCompile(`^UTC([+-])(\d{1,2})$`)

// NormalizePhone parses value and returns it in E.164 form. Numbers without
// a leading + are read in the default region.
func NormalizePhone(value string) (string, error) {
	value = strings.TrimSpace(value)
	if len(value) < 4 {
		return "", fmt.Errorf("phone number %q is too short", value)
	}
	num, err := phonenumbers.Parse(value, defaultRegion)
	if err != nil {
		return "", fmt.Errorf("failed to parse phone number %q: %w", value, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("phone number %q is not valid", value)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// LoadLocation resolves an IANA name or the backend's UTC±N notation. UTC±N
// becomes a fixed zone N hours east (+) or west (-) of UTC.
func LoadLocation(tz string) (*time.Location, error) {
	if m := utcOffsetPattern.FindStringSubmatch(tz); m != nil {
		hours, _ := strconv.Atoi(m[2])
		offset := hours * 3600
		if m[1] == "-" {
			offset = -offset
		}
		return time.FixedZone(tz, offset), nil
	}
	if tz == "" {
		return nil, fmt.Errorf("empty timezone")
	}
	return time.LoadLocation(tz)
}

// ValidTimezone reports whether LoadLocation can resolve tz
func ValidTimezone(tz string) bool {
	_, err := LoadLocation(tz)
	return err == nil
}

// ValidateCreate checks c and normalizes its phone number in place
func ValidateCreate(c *Create, now time.Time) error {
	var errs validate.Errors
	errs.Length("title", "Title", c.Title, 1, MaxTitleLength)
	errs.Length("message", "Message", c.Message, 1, MaxMessageLength)
	validatePhone(&errs, &c.PhoneNumber)
	validateDateTime(&errs, c.DateTime, now)
	validateTimezone(&errs, c.Timezone)
	return errs.Err()
}

// ValidateUpdate checks only the fields u sets
func ValidateUpdate(u *Update, now time.Time) error {
	var errs validate.Errors
	if u.Empty() {
		errs.Add("update", "Nothing to update")
		return errs.Err()
	}
	if u.Title != nil {
		errs.Length("title", "Title", *u.Title, 1, MaxTitleLength)
	}
	if u.Message != nil {
		errs.Length("message", "Message", *u.Message, 1, MaxMessageLength)
	}
	if u.PhoneNumber != nil {
		validatePhone(&errs, u.PhoneNumber)
	}
	if u.DateTime != nil {
		validateDateTime(&errs, *u.DateTime, now)
	}
	if u.Timezone != nil {
		validateTimezone(&errs, *u.Timezone)
	}
	if u.Status != nil && !u.Status.Valid() {
		errs.Add("status", fmt.Sprintf("Unknown status %q", *u.Status))
	}
	return errs.Err()
}

func validatePhone(errs *validate.Errors, phone *string) {
	if strings.TrimSpace(*phone) == "" {
		errs.Add("phone_number", "Phone number is required")
		return
	}
	normalized, err := NormalizePhone(*phone)
	if err != nil {
		errs.Add("phone_number", "Please enter a valid phone number")
		return
	}
	*phone = normalized
}

func validateDateTime(errs *validate.Errors, t, now time.Time) {
	if t.IsZero() {
		errs.Add("date_time", "Date and time is required")
		return
	}
	if !t.After(now) {
		errs.Add("date_time", "Date and time must be in the future")
	}
}

func validateTimezone(errs *validate.Errors, tz string) {
	if tz == "" {
		errs.Add("timezone", "Timezone is required")
		return
	}
	if !ValidTimezone(tz) {
		errs.Add("timezone", fmt.Sprintf("Unknown timezone %q", tz))
	}
}
