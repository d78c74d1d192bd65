package utils

import "time"

var moscow = time.FixedZone("UTC+3", 3*60*60)

// NowUTC returns the current time in UTC
func NowUTC() time.Time {
	return time.Now().UTC()
}

func AddHours(t time.Time, hours int) time.Time {
	return t.Add(time.Duration(hours) * time.Hour)
}

func TimePtr(t time.Time) *time.Time {
	return &t
}

// FormatMoscow renders t for bot messages, which are always shown in Moscow time.
func FormatMoscow(t time.Time) string {
	return t.In(moscow).Format("02.01.2006 15:04")
}
