package cli

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/okian/salesgrid/internal/adapters/rest"
	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/internal/domain/types"
	"github.com/okian/salesgrid/pkg/logger"
)

// ErrVerify is returned when the server state does not match the writes sent.
var ErrVerify = errors.New("load: verification failed")

// LoadConfig describes a load run against one sheet.
type LoadConfig struct {
	Sellers     int    // number of load sellers to create or reuse
	Writes      int    // total cell saves to send
	Workers     int    // concurrent senders
	ResendEvery int    // resend every n-th save with the same request id; 0 disables
	Prefix      string // username prefix of load sellers
	Cleanup     bool   // delete the load sellers afterwards
}

// LoadStats counts what a load run did.
type LoadStats struct {
	Submitted int64
	Saved     int64
	Duplicate int64
	Failed    int64
	Verified  int
	Duration  time.Duration
}

type loadWrite struct {
	cell sheet.Cell
	id   string
}

func loadCommand(a *App) *cobra.Command {
	lc := LoadConfig{}
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Send concurrent cell saves and verify the sheet converges (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := a.tableID()
			if err != nil {
				return err
			}
			c, s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(s)

			st, err := runLoad(cmd.Context(), c, table, lc, a.logger.Named("load"))
			a.println(fmt.Sprintf("%d enviadas, %d salvas, %d duplicadas, %d falhas, %d células verificadas em %s",
				st.Submitted, st.Saved, st.Duplicate, st.Failed, st.Verified, st.Duration.Round(time.Millisecond)))
			return err
		},
	}
	f := cmd.Flags()
	f.IntVar(&lc.Sellers, "sellers", 5, "number of load sellers")
	f.IntVar(&lc.Writes, "writes", 200, "number of cell saves")
	f.IntVar(&lc.Workers, "workers", 8, "concurrent senders")
	f.IntVar(&lc.ResendEvery, "resend-every", 10, "resend every n-th save with the same request id (0 disables)")
	f.StringVar(&lc.Prefix, "prefix", "load", "username prefix of load sellers")
	f.BoolVar(&lc.Cleanup, "cleanup", false, "delete load sellers when done")
	return cmd
}

// runLoad ensures the load sellers exist, sends the writes and checks that
// every touched cell holds the last value written to it.
func runLoad(ctx context.Context, c *rest.Client, table sheet.TableID, lc LoadConfig, log logger.Logger) (st LoadStats, err error) {
	if lc.Sellers < 1 || lc.Writes < 1 || lc.Workers < 1 {
		return st, fmt.Errorf("load: sellers, writes and workers must be positive")
	}
	start := time.Now()
	defer func() { st.Duration = time.Since(start) }()

	sellers, created, err := ensureSellers(ctx, c, lc)
	if err != nil {
		return st, err
	}
	if lc.Cleanup {
		defer removeSellers(ctx, c, created, log)
	}

	// Each worker owns a disjoint set of cells so the last write per cell is known.
	fields := sheet.Fields()
	perWorker := make([][]loadWrite, lc.Workers)
	expected := make(map[sheet.Cell]float64)
	for i := 0; i < lc.Writes; i++ {
		slot := i % (len(sellers) * len(fields))
		cell := sheet.Cell{
			Entity: sellers[slot/len(fields)],
			Field:  fields[slot%len(fields)],
			Value:  float64(rand.IntN(1_000_000)) / 100,
		}
		expected[sheet.Cell{Entity: cell.Entity, Field: cell.Field}] = cell.Value
		w := slot % lc.Workers
		perWorker[w] = append(perWorker[w], loadWrite{cell: cell, id: uuid.NewString()})
	}

	log.Info(ctx, "starting load",
		logger.String("table", string(table)),
		logger.Int("sellers", len(sellers)),
		logger.Int("writes", lc.Writes),
		logger.Int("workers", lc.Workers))

	var (
		submitted, saved, dup, failed atomic.Int64
		n                             atomic.Int64
		wg                            sync.WaitGroup
	)
	for _, writes := range perWorker {
		wg.Add(1)
		go func(writes []loadWrite) {
			defer wg.Done()
			for _, w := range writes {
				if ctx.Err() != nil {
					return
				}
				sends := 1
				if lc.ResendEvery > 0 && n.Add(1)%int64(lc.ResendEvery) == 0 {
					sends = 2
				}
				for range sends {
					submitted.Add(1)
					resp, err := c.SaveCell(ctx, table, w.cell, w.id)
					switch {
					case err != nil:
						failed.Add(1)
						log.Warn(ctx, "save failed", logger.String("entity", w.cell.Entity), logger.Error(err))
					case resp.Duplicate:
						dup.Add(1)
					default:
						saved.Add(1)
					}
				}
			}
		}(writes)
	}
	wg.Wait()
	st.Submitted, st.Saved, st.Duplicate, st.Failed = submitted.Load(), saved.Load(), dup.Load(), failed.Load()
	if err := ctx.Err(); err != nil {
		return st, err
	}

	resp, err := c.FetchTable(ctx, table)
	if err != nil {
		return st, err
	}
	var mismatches int
	for cell, want := range expected {
		got := resp.Cells.Get(cell.Entity, cell.Field)
		if math.Abs(got-want) > 0.005 {
			mismatches++
			log.Warn(ctx, "cell mismatch",
				logger.String("entity", cell.Entity),
				logger.String("field", string(cell.Field)),
				logger.Float64("want", want),
				logger.Float64("got", got))
			continue
		}
		st.Verified++
	}

	log.Info(ctx, "load finished",
		logger.Int64("submitted", st.Submitted),
		logger.Int64("saved", st.Saved),
		logger.Int64("duplicate", st.Duplicate),
		logger.Int64("failed", st.Failed),
		logger.Int("verified", st.Verified))

	if mismatches > 0 || st.Failed > 0 {
		return st, fmt.Errorf("%w: %d cells differ, %d saves failed", ErrVerify, mismatches, st.Failed)
	}
	return st, nil
}

// ensureSellers returns the load sellers' usernames, creating missing ones.
func ensureSellers(ctx context.Context, c *rest.Client, lc LoadConfig) (names []string, created []model.Entity, err error) {
	users, err := c.ListUsers(ctx)
	if err != nil {
		return nil, nil, err
	}
	have := make(map[string]bool, len(users))
	for _, u := range users {
		have[u.Username] = true
	}
	for i := 1; i <= lc.Sellers; i++ {
		name := fmt.Sprintf("%s%02d", lc.Prefix, i)
		names = append(names, name)
		if have[name] {
			continue
		}
		u, err := c.CreateUser(ctx, types.CreateUserRequest{
			Username: name,
			Password: uuid.NewString(),
			Role:     string(model.RoleUser),
		})
		if err != nil {
			return nil, created, fmt.Errorf("create %s: %w", name, err)
		}
		created = append(created, u)
	}
	return names, created, nil
}

func removeSellers(ctx context.Context, c *rest.Client, users []model.Entity, log logger.Logger) {
	for _, u := range users {
		if err := c.DeleteUser(ctx, u.ID); err != nil {
			log.Warn(ctx, "cleanup failed", logger.String("user", u.Username), logger.Error(err))
		}
	}
}
