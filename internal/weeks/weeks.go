// Package weeks anchors timestamps to the canonical trading week.
//
// A trading week opens Sunday 19:00 America/New_York and runs seven days.
// Older snapshot writers used Sunday 17:00 ET and Monday 00:00 ET; Normalize
// folds those onto the canonical anchor.
package weeks

import (
	"fmt"
	"sort"
	"time"
	_ "time/tzdata"

	"github.com/yourusername/limni-research/internal/models"
)

const (
	openHour = 19
	// Sunday timestamps from this ET hour onward belong to that evening's open
	graceHour = 12
)

var newYork = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("weeks: load location %s: %v", name, err))
	}
	return loc
}

// Location returns the exchange time zone weeks are anchored in
func Location() *time.Location {
	return newYork
}

func sundayOpen(ny time.Time) time.Time {
	sunday := ny.AddDate(0, 0, -int(ny.Weekday()))
	return time.Date(sunday.Year(), sunday.Month(), sunday.Day(), openHour, 0, 0, 0, newYork)
}

// CanonicalWeekOpen returns the latest week open at or before t, in UTC
func CanonicalWeekOpen(t time.Time) time.Time {
	ny := t.In(newYork)
	open := sundayOpen(ny)
	if ny.Before(open) {
		open = sundayOpen(ny.AddDate(0, 0, -7))
	}
	return open.UTC()
}

// Normalize maps a legacy week anchor onto the canonical week open.
// Sunday afternoon anchors (17:00 ET writers) snap forward to 19:00 the same day.
func Normalize(t time.Time) time.Time {
	ny := t.In(newYork)
	if ny.Weekday() == time.Sunday && ny.Hour() >= graceHour && ny.Hour() < openHour {
		return sundayOpen(ny).UTC()
	}
	return CanonicalWeekOpen(t)
}

// Next returns the week open seven calendar days after open
func Next(open time.Time) time.Time {
	ny := open.In(newYork).AddDate(0, 0, 7)
	return time.Date(ny.Year(), ny.Month(), ny.Day(), openHour, 0, 0, 0, newYork).UTC()
}

// Enumerate lists canonical week opens overlapping [from, to) in ascending order
func Enumerate(from, to time.Time) []time.Time {
	if !from.Before(to) {
		return nil
	}
	var out []time.Time
	for open := CanonicalWeekOpen(from); open.Before(to); open = Next(open) {
		out = append(out, open)
	}
	return out
}

// Format renders a week open the way results and stores key it
func Format(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Parse reads an RFC3339 timestamp, with or without fractional seconds
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse week timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Dedupe re-anchors performance rows to canonical weeks and keeps, per
// week, asset class and model, the row with the best coverage score.
// Output is ordered by week, asset class, then model.
func Dedupe(rows []models.WeeklyPerformance) []models.WeeklyPerformance {
	type key struct {
		week       int64
		assetClass models.AssetClass
		model      models.StrategyModel
	}
	best := make(map[key]models.WeeklyPerformance, len(rows))
	for _, row := range rows {
		row.WeekOpenUTC = Normalize(row.WeekOpenUTC)
		k := key{row.WeekOpenUTC.Unix(), row.AssetClass, row.Model}
		current, ok := best[k]
		if !ok || row.Score() > current.Score() {
			best[k] = row
		}
	}

	out := make([]models.WeeklyPerformance, 0, len(best))
	for _, row := range best {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.WeekOpenUTC.Equal(b.WeekOpenUTC) {
			return a.WeekOpenUTC.Before(b.WeekOpenUTC)
		}
		if a.AssetClass != b.AssetClass {
			return a.AssetClass < b.AssetClass
		}
		return a.Model < b.Model
	})
	return out
}
