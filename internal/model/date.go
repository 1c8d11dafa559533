package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the calendar-date form used for dates of birth.
const DateLayout = "2006-01-02"

// Date is a calendar date in request bodies. It decodes "2006-01-02" as well
// as full RFC 3339 timestamps, keeping only the date part.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		ts, rerr := time.Parse(time.RFC3339, s)
		if rerr != nil {
			return fmt.Errorf("date %q: want YYYY-MM-DD", s)
		}
		t = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(DateLayout))
}

// TimePtr returns the date as a time, or nil for a nil receiver.
func (d *Date) TimePtr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}
