package directory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FlexString accepts JSON fields delivered as either string or number,
// which the upstream service does for record identifiers.
type FlexString string

func (fs *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		*fs = FlexString(strings.TrimSpace(s))
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(trimmed, &num); err == nil {
		*fs = FlexString(num.String())
		return nil
	}

	return fmt.Errorf("expected string or number, got %s", string(data))
}

func (fs FlexString) String() string { return string(fs) }

// User is one directory entry as served by the upstream listing. The
// directory owns this data; the gateway only reads it.
type User struct {
	Record     FlexString `json:"record"`
	NationalID FlexString `json:"id"`
	LastNames  string     `json:"lastnames"`
	FirstNames string     `json:"names"`
	Mail       string     `json:"mail"`
	Phone      string     `json:"phone"`
	Username   string     `json:"user"`
}

// FullName joins first and last names for display.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstNames + " " + u.LastNames)
}

// Record is one raw attendance row from the upstream service. Date is
// YYYY-MM-DD and Time is HH:MM:SS, both zero-padded fixed width.
type Record struct {
	Record   FlexString `json:"record"`
	Date     string     `json:"date"`
	Time     string     `json:"time"`
	JoinDate string     `json:"join_date"`
}
