// Package dispatch submits the pending queue as one bulk status transition
// and folds the per-unit result back into the queue.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/BearBump/PassportDesk/internal/scan"
	"github.com/BearBump/PassportDesk/internal/services/events"
	"github.com/BearBump/PassportDesk/internal/services/pending"
	"github.com/BearBump/PassportDesk/internal/services/transitions"
	"github.com/pkg/errors"
)

var (
	ErrValidation       = errors.New("dispatch validation failed")
	ErrEmptyQueue       = errors.New("nothing to dispatch")
	ErrNetworkFailure   = errors.New("dispatch request failed")
	ErrPartialFailure   = errors.New("some units failed")
	ErrDispatchInFlight = errors.New("a dispatch is already in progress")
)

const (
	GenericFailureMessage = "Transition failed"
	MissingResultMessage  = "No result returned for this unit"
)

type BulkClient interface {
	BulkTransition(ctx context.Context, batch models.DispatchBatch) (models.BulkResult, error)
}

type Outcome struct {
	Submitted   int
	Succeeded   int
	Failed      int
	FailedItems []models.ScannedItem
}

type Reconciler struct {
	queue  *pending.Queue
	client BulkClient
	form   *Form
	bus    *events.Bus
	logger *slog.Logger

	inFlight atomic.Bool
}

func New(queue *pending.Queue, client BulkClient, bus *events.Bus, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		queue:  queue,
		client: client,
		form:   NewForm(),
		bus:    bus,
		logger: logger.With("component", "dispatch"),
	}
}

func (r *Reconciler) Form() *Form {
	return r.form
}

// InFlight reports whether a bulk call is outstanding; callers disable their
// submit action while it is true.
func (r *Reconciler) InFlight() bool {
	return r.inFlight.Load()
}

// Submit sends every queued unit to target in one bulk request. Local
// validation failures never reach the network. A transport failure leaves the
// queue untouched; a structured answer keeps only the failed units.
func (r *Reconciler) Submit(ctx context.Context, target models.Status) (Outcome, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return Outcome{}, ErrDispatchInFlight
	}
	defer r.inFlight.Store(false)
	defer r.bus.Publish(events.Event{Kind: events.KindRefocus})

	batch, err := r.prepare(target)
	if err != nil {
		r.bus.Publish(events.Event{Kind: events.KindValidation, Err: err})
		return Outcome{}, err
	}
	out := Outcome{Submitted: len(batch.UnitIDs)}

	r.logger.Info("dispatch started", "units", len(batch.UnitIDs), "to_status", string(target))
	res, err := r.client.BulkTransition(ctx, batch)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrNetworkFailure, err)
		r.logger.Error("dispatch failed, queue untouched", "units", len(batch.UnitIDs), "error", err.Error())
		r.bus.Publish(events.Event{Kind: events.KindDispatchFailed, Count: len(batch.UnitIDs), Err: err})
		return out, err
	}

	failures := foldResults(batch.UnitIDs, res)
	failed, err := r.queue.ApplyDispatch(ctx, batch.UnitIDs, failures)
	if err != nil {
		// сервер уже применил переходы, но локально всё осталось в очереди:
		// повторная отправка получит ошибки по уже переведённым юнитам
		r.logger.Error("reconcile dispatch result", "error", err.Error())
		r.bus.Publish(events.Event{Kind: events.KindDispatchFailed, Count: len(batch.UnitIDs), Err: err})
		return out, errors.Wrap(err, "reconcile dispatch result")
	}

	out.Failed = len(failures)
	out.Succeeded = out.Submitted - out.Failed
	out.FailedItems = failed

	if out.Failed == 0 {
		r.form.Reset()
		r.logger.Info("dispatch completed", "units", out.Succeeded, "to_status", string(target))
		r.bus.Publish(events.Event{Kind: events.KindDispatched, Count: out.Succeeded})
		return out, nil
	}

	r.logger.Warn("dispatch partially failed",
		"submitted", out.Submitted, "succeeded", out.Succeeded, "failed", out.Failed, "to_status", string(target))
	r.bus.Publish(events.Event{Kind: events.KindPartialFailure, Count: out.Failed})
	return out, fmt.Errorf("%w: %d of %d units", ErrPartialFailure, out.Failed, out.Submitted)
}

func (r *Reconciler) prepare(target models.Status) (models.DispatchBatch, error) {
	if !target.Valid() {
		return models.DispatchBatch{}, fmt.Errorf("%w: unknown target status %q", ErrValidation, target)
	}
	ids := r.queue.IDs()
	if len(ids) == 0 {
		return models.DispatchBatch{}, ErrEmptyQueue
	}
	values := r.form.Values()
	if missing := transitions.MissingRequired(target, values); len(missing) > 0 {
		return models.DispatchBatch{}, fmt.Errorf("%w: %s is required", ErrValidation, strings.Join(missing, ", "))
	}
	return models.DispatchBatch{
		UnitIDs:      ids,
		TargetStatus: target,
		Metadata:     transitions.Clean(target, values),
	}, nil
}

// foldResults maps every submitted id that did not succeed to its error
// message. Ids the server did not report on count as failed. Without a
// results list only counts that confirm the whole batch mean success.
func foldResults(submitted []string, res models.BulkResult) map[string]string {
	confirmedAll := res.Results == nil && res.FailedCount == 0 && res.SuccessCount == len(submitted)

	byID := make(map[string]models.UnitResult, len(res.Results))
	for _, ur := range res.Results {
		id, ok := scan.Normalize(ur.PassportID)
		if !ok {
			id = strings.ToLower(strings.TrimSpace(ur.PassportID))
		}
		byID[id] = ur
	}

	failures := make(map[string]string)
	for _, id := range submitted {
		ur, ok := byID[id]
		switch {
		case ok && ur.Success:
		case ok:
			msg := strings.TrimSpace(ur.Error)
			if msg == "" {
				msg = GenericFailureMessage
			}
			failures[id] = msg
		case confirmedAll:
		default:
			failures[id] = MissingResultMessage
		}
	}
	return failures
}
