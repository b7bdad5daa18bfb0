package entity

import (
	"encoding/json"
	"time"
)

const dicomDateLayout = "20060102"

// ParseDate converts a DICOM DA value (YYYYMMDD) to a UTC date.
func ParseDate(raw string) (time.Time, error) {
	return time.Parse(dicomDateLayout, raw)
}

// Date is a calendar date without a time of day.
type Date struct {
	time.Time
}

func (d Date) String() string {
	return d.Format(time.DateOnly)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
