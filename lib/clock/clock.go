package clock

import (
	"fmt"
	"time"
)

const layout = "2006-01-02T15:04:05Z"

func Now() string {
	return time.Now().UTC().Format(layout)
}

// Parse converts a timestamp produced by Now back to time.Time.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a valid time: %s", s)
	}
	return t, nil
}

// Duration duration between two times represented as strings
func Duration(from, to string) (time.Duration, error) {
	fromTime, err := Parse(from)
	if err != nil {
		return 0, err
	}
	toTime, err := Parse(to)
	if err != nil {
		return 0, err
	}
	return toTime.Sub(fromTime), nil
}
