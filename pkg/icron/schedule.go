package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type TriggerInfo struct {
	Next       time.Time `json:"next"`
	Last       time.Time `json:"last,omitempty"`
	Expression string    `json:"expression"`

	TimeSinceLast time.Duration `json:"time_since_last,omitempty"`
	TimeUntilNext time.Duration `json:"time_until_next"`
}

// Parse accepts the same expressions as cron.New(): five fields or a
// descriptor such as "@hourly".
func Parse(cronExpr string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// GetTriggerInfo reports the triggers around refTime. Last stays zero when the
// expression did not fire within the past year.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := Parse(cronExpr)
	if err != nil {
		return nil, err
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       schedule.Next(refTime),
		Last:       lastTrigger(schedule, refTime),
	}
	if !info.Last.IsZero() {
		info.TimeSinceLast = refTime.Sub(info.Last)
	}
	info.TimeUntilNext = info.Next.Sub(refTime)

	return info, nil
}

func lastTrigger(schedule cron.Schedule, refTime time.Time) time.Time {
	var prev time.Time
	for i := range 366 * 24 {
		checkTime := refTime.Add(-time.Duration(i+1) * time.Hour)
		if candidate := schedule.Next(checkTime); !candidate.After(refTime) {
			prev = candidate
			break
		}
	}
	if prev.IsZero() {
		return prev
	}
	for {
		next := schedule.Next(prev)
		if next.After(refTime) {
			return prev
		}
		prev = next
	}
}
