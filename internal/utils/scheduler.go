package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// ConvertToJobDef converts a string interval to a gocron.JobDefinition.
// The interval may be a duration ("1h", "30m"), a daily clock time ("04:05")
// or a standard cron expression.
func ConvertToJobDef(interval string) (gocron.JobDefinition, error) {
	var jd gocron.JobDefinition

	if t, ok := parseClockTime(interval); ok {
		return gocron.DailyJob(1, gocron.NewAtTimes(
			gocron.NewAtTime(uint(t.Hour()), uint(t.Minute()), uint(t.Second())),
		)), nil
	}

	if _, err := cron.ParseStandard(interval); err == nil {
		return gocron.CronJob(interval, false), nil
	}

	if dur, err := time.ParseDuration(interval); err == nil {
		return gocron.DurationJob(dur), nil
	}

	return jd, fmt.Errorf("invalid interval format: %s", interval)
}

func parseClockTime(s string) (time.Time, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return time.Time{}, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return time.Time{}, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return time.Time{}, false
	}
	now := time.Now()
	// today at h:m:00 in the local zone
	return time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, time.Local), true
}
