package watchdog

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// scheduleParser — стандартные 5 полей плюс дескрипторы (@every, @hourly).
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule разбирает расписание проверок.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSchedule, expr, err)
	}
	return sched, nil
}

// ValidateSchedule проверяет валидность расписания.
func ValidateSchedule(expr string) error {
	_, err := ParseSchedule(expr)
	return err
}
