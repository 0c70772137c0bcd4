package syncclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/okian/salesgrid/internal/adapters/mq/queue"
	"github.com/okian/salesgrid/internal/domain/grid"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/pkg/logger"
	"github.com/okian/salesgrid/pkg/metrics"
)

// enqueue hands e to the save dispatcher; a full or closed queue fails the
// edit straight away.
func (s *Session) enqueue(ctx context.Context, e grid.Edit) {
	j := queue.Job{Edit: e, RequestID: uuid.NewString()}
	if !s.queue.Enqueue(ctx, j) {
		s.saveFailed(ctx, j, ErrQueueFull)
	}
}

func (s *Session) send(ctx context.Context, j queue.Job) error {
	c := sheet.Cell{Entity: j.Edit.Entity, Field: j.Edit.Field, Value: j.Edit.Value}
	resp, err := s.client.SaveCell(ctx, j.Edit.Table, c, j.RequestID)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &ServerRejected{Op: "save cell", Status: 200, Message: "save not acknowledged"}
	}
	if resp.Duplicate {
		metrics.RecordCellSave(string(j.Edit.Table), metrics.OutcomeDuplicate)
		s.logger.Debug(ctx, "save acknowledged as duplicate", logger.String("request_id", j.RequestID))
	}
	return nil
}

type saveReporter struct{ s *Session }

func (r saveReporter) Saved(ctx context.Context, j queue.Job) { r.s.saved(ctx, j) }

func (r saveReporter) SaveFailed(ctx context.Context, j queue.Job, err error) {
	r.s.saveFailed(ctx, j, err)
}

func (s *Session) saved(ctx context.Context, j queue.Job) {
	s.mu.Lock()
	applied := false
	if t := s.tables[j.Edit.Table]; t != nil {
		applied = t.Confirm(j.Edit)
	}
	s.updatePendingLocked()
	s.mu.Unlock()

	metrics.RecordCellSave(string(j.Edit.Table), metrics.OutcomeSynced)
	if applied {
		s.changed(j.Edit.Table)
	}
}

func (s *Session) saveFailed(ctx context.Context, j queue.Job, err error) {
	s.mu.Lock()
	applied := false
	if t := s.tables[j.Edit.Table]; t != nil {
		applied = t.Fail(j.Edit, err)
	}
	s.updatePendingLocked()
	s.mu.Unlock()

	outcome := metrics.OutcomeRejected
	if IsTransport(err) || errors.Is(err, ErrQueueFull) {
		outcome = metrics.OutcomeFailed
	}
	metrics.RecordCellSave(string(j.Edit.Table), outcome)
	if errors.Is(err, ErrSessionExpired) {
		s.expire()
	}
	if !applied {
		return
	}
	s.postError(fmt.Sprintf("Erro ao salvar %s (%s)", j.Edit.Entity, j.Edit.Field.Label()), err)
	s.changed(j.Edit.Table)
}
