package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cloo-solutions/coverstats/internal/domain"
)

const exportTimestampFormat = "02-01-2006_15:04"

// defaultExportName names an export of [from, to] created at now, e.g.
// "07-12-2019_extracted-at-08-12-2019_10:15.csv" for a single day.
func defaultExportName(from, to, now time.Time) string {
	days := from.Format(domain.DayFormat)
	if !domain.Day(from).Equal(domain.Day(to)) {
		days += "_" + to.Format(domain.DayFormat)
	}
	return fmt.Sprintf("%s_extracted-at-%s.csv", days, now.Format(exportTimestampFormat))
}

// parseDayRange parses the dd-mm-yyyy bounds of an export. An empty to
// means a single day export.
func parseDayRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	from, err := domain.ParseDay(fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
	}
	if toRaw == "" {
		return from, from, nil
	}
	to, err := domain.ParseDay(toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, domain.ErrInvalidDateRange
	}
	return from, to, nil
}

// retentionCompareDate returns now minus the optional age in days.
func retentionCompareDate(args []string, now time.Time) (time.Time, error) {
	if len(args) == 0 {
		return now, nil
	}
	days, err := strconv.Atoi(args[0])
	if err != nil || days < 0 {
		return time.Time{}, fmt.Errorf("invalid age %q: expected a non-negative number of days", args[0])
	}
	return now.AddDate(0, 0, -days), nil
}

// fakeDay returns the day to seed, today when no date is given.
func fakeDay(args []string, now time.Time) (time.Time, error) {
	if len(args) == 0 {
		return domain.Day(now), nil
	}
	return domain.ParseDay(args[0])
}
