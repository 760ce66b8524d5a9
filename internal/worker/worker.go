package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"taskd/internal/models"
	"taskd/internal/service"
	"taskd/pkg/logger"
)

// MessageReader is the subset of *kafka.Reader the worker needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Worker applies TaskCommands from the commands topic through the task
// service. Scale by running more replicas; the consumer group shares
// partitions between them.
type Worker struct {
	reader    MessageReader
	svc       *service.Service
	processed atomic.Int64
	rejected  atomic.Int64
}

func New(reader MessageReader, svc *service.Service) *Worker {
	return &Worker{reader: reader, svc: svc}
}

const (
	minBackoff = 100 * time.Millisecond
	maxBackoff = 5 * time.Second
)

// Run consumes until ctx is cancelled. Commands the service rejects are
// committed so a poison message cannot block its partition. Commands that
// fail because storage is unavailable are retried with backoff and are
// left uncommitted if shutdown interrupts the retries.
func (w *Worker) Run(ctx context.Context) error {
	defer w.reader.Close()
	logger.Info(ctx, "Kafka consumer started")
	fetchBackoff := minBackoff
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return w.stopped(ctx)
			}
			logger.Error(ctx, "Worker fetch failed", "error", err, "retry_in", fetchBackoff)
			if !sleep(ctx, fetchBackoff) {
				return w.stopped(ctx)
			}
			fetchBackoff = min(fetchBackoff*2, maxBackoff)
			continue
		}
		fetchBackoff = minBackoff

		if !w.apply(ctx, msg) {
			return w.stopped(ctx)
		}
		if err := w.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Error(ctx, "Worker commit failed", "error", err)
		}
	}
}

// apply handles msg, retrying while storage is unavailable. It reports
// false when ctx ended before the command reached a final outcome.
func (w *Worker) apply(ctx context.Context, msg kafka.Message) bool {
	backoff := minBackoff
	for {
		err := w.handleMessage(ctx, msg.Value)
		switch {
		case err == nil:
			w.processed.Add(1)
			return true
		case errors.Is(err, models.ErrStorageUnavailable):
			logger.Warn(ctx, "Storage unavailable, retrying command", "error", err, "offset", msg.Offset, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return false
			}
			backoff = min(backoff*2, maxBackoff)
		default:
			w.rejected.Add(1)
			logger.Error(ctx, "Worker handle failed", "error", err, "payload", string(msg.Value), "offset", msg.Offset)
			return true
		}
	}
}

func (w *Worker) stopped(ctx context.Context) error {
	logger.Info(ctx, "Kafka consumer stopped", "processed", w.processed.Load(), "rejected", w.rejected.Load())
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Processed returns the number of commands applied successfully.
func (w *Worker) Processed() int64 { return w.processed.Load() }

// Rejected returns the number of commands that failed.
func (w *Worker) Rejected() int64 { return w.rejected.Load() }

func (w *Worker) handleMessage(ctx context.Context, payload []byte) error {
	var cmd models.TaskCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: decode command: %w", models.ErrInvalidArgument, err)
	}
	switch cmd.Action {
	case models.ActionAdd:
		_, err := w.svc.AddTask(ctx, service.AddTaskInput{Title: cmd.Title, Priority: cmd.Priority, DueDate: cmd.DueDate})
		return err
	case models.ActionComplete:
		_, err := w.svc.CompleteTask(ctx, cmd.ID)
		return err
	case models.ActionUpdatePriority:
		_, err := w.svc.UpdateTaskPriority(ctx, cmd.ID, cmd.Priority)
		return err
	case models.ActionDelete:
		return w.svc.DeleteTask(ctx, cmd.ID)
	case "":
		return errors.New("command has no action")
	default:
		return fmt.Errorf("%w: unknown action %q", models.ErrInvalidArgument, cmd.Action)
	}
}
