package repository

import (
	"context"
	"time"

	"booking-scraper-service/internal/domain/model"
)

// JobQueue is a durable FIFO with a single delivery attempt per job.
type JobQueue interface {
	Enqueue(ctx context.Context, req model.LookupRequest) (string, error)
	// Dequeue removes the next job and marks it active. A dequeued job is
	// never delivered again, whether or not it is acked.
	// Returns domain.ErrQueueEmpty when nothing arrives within block.
	Dequeue(ctx context.Context, block time.Duration) (*model.Job, error)
	// Ack and Nack move an active job to its terminal state and drop it from
	// the job store, leaving only a short-lived receipt. The booking itself
	// is written to the ResultCache by the caller before Ack.
	Ack(ctx context.Context, jobID string) error
	Nack(ctx context.Context, jobID string, reason string) error
	// Get returns the live job, or the receipt of a finished one.
	// Returns domain.ErrNotFound when neither exists.
	Get(ctx context.Context, jobID string) (*model.Job, *model.JobReceipt, error)
}
