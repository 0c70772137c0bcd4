package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/internal/domain/types"
	"github.com/okian/salesgrid/pkg/logger"
	"github.com/okian/salesgrid/pkg/metrics"
)

const dateLayout = "2006-01-02"

// AuthorizeArchive reports whether secret matches the configured archive
// secret. An unset secret never matches.
func (s *Service) AuthorizeArchive(secret string) bool {
	if s.archiveSecret == "" || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(s.archiveSecret)) == 1
}

// ArchiveWeek stores the current week's totals of table and zeroes it.
func (s *Service) ArchiveWeek(ctx context.Context, table sheet.TableID) (types.ArchiveResponse, error) {
	now := s.now()
	start, end := model.WeekBounds(now)
	records, err := s.store.ArchiveWeek(ctx, table, start, end, now)
	if err != nil {
		return types.ArchiveResponse{}, err
	}
	metrics.RecordArchiveRun()
	s.logger.Info(ctx, "week archived",
		logger.String("table", string(table)),
		logger.String("weekStart", start.Format(dateLayout)),
		logger.Int("sellers", len(records)),
	)
	return types.ArchiveResponse{
		Success:   true,
		Table:     table,
		Archived:  len(records),
		WeekStart: start.Format(dateLayout),
		WeekEnd:   end.Format(dateLayout),
	}, nil
}

// WeeklyHistory lists archived weeks newest first. An empty table lists both sheets.
func (s *Service) WeeklyHistory(ctx context.Context, table sheet.TableID) ([]model.WeeklyArchive, error) {
	out, err := s.store.WeeklyHistory(ctx, table)
	if out == nil && err == nil {
		out = []model.WeeklyArchive{}
	}
	return out, err
}

// RecordDailySummary stores each seller's value for day's weekday on both
// sheets. Weekends have no column and record nothing.
func (s *Service) RecordDailySummary(ctx context.Context, day time.Time) (int, error) {
	f, ok := sheet.FieldForWeekday(day.Weekday())
	if !ok {
		return 0, nil
	}
	total := 0
	for _, t := range sheet.Tables() {
		n, err := s.store.RecordDailySales(ctx, day, t, f)
		if err != nil {
			return total, fmt.Errorf("record daily sales %s: %w", t, err)
		}
		total += n
	}
	metrics.RecordDailySnapshot()
	s.logger.Info(ctx, "daily summary recorded",
		logger.String("day", day.Format(dateLayout)),
		logger.Int("rows", total),
	)
	return total, nil
}

// DailySales returns stored daily values between from and to, inclusive.
func (s *Service) DailySales(ctx context.Context, from, to time.Time) ([]model.DailySales, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: from must not be after to", ErrInvalidInput)
	}
	return s.store.DailySales(ctx, from, to)
}

// MonthSummary totals daily sales of a month per ISO week.
func (s *Service) MonthSummary(ctx context.Context, year int, month time.Month) (types.SummaryResponse, error) {
	if month < time.January || month > time.December {
		return types.SummaryResponse{}, fmt.Errorf("%w: month %d", ErrInvalidInput, month)
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	last := first.AddDate(0, 1, -1)

	sales, err := s.store.DailySales(ctx, first, last)
	if err != nil {
		return types.SummaryResponse{}, err
	}

	type key struct{ year, week int }
	sums := make(map[key]decimal.Decimal)
	bounds := make(map[key][2]time.Time)
	grand := decimal.Zero
	for _, d := range sales {
		y, w := d.Day.ISOWeek()
		k := key{y, w}
		v := decimal.NewFromFloat(d.Value)
		sums[k] = sums[k].Add(v)
		if _, ok := bounds[k]; !ok {
			start, end := model.WeekBounds(d.Day)
			bounds[k] = [2]time.Time{start, end}
		}
		grand = grand.Add(v)
	}

	weeks := make([]model.WeekTotal, 0, len(sums))
	for k, sum := range sums {
		b := bounds[k]
		weeks = append(weeks, model.WeekTotal{
			Year:  k.year,
			Week:  k.week,
			Start: b[0],
			End:   b[1],
			Total: sum.Round(2).InexactFloat64(),
		})
	}
	sort.Slice(weeks, func(i, j int) bool {
		if weeks[i].Year != weeks[j].Year {
			return weeks[i].Year < weeks[j].Year
		}
		return weeks[i].Week < weeks[j].Week
	})

	return types.SummaryResponse{
		Year:  year,
		Month: int(month),
		Weeks: weeks,
		Total: grand.Round(2).InexactFloat64(),
	}, nil
}
