package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
	"github.com/oklog/ulid/v2"
)

var _ repository.JobQueue = (*JobQueue)(nil)

// handoffTimeout bounds the Redis calls that settle a popped id.
const handoffTimeout = 5 * time.Second

type JobQueueConfig struct {
	Prefix       string
	ReceiptTTL   time.Duration
	AbandonAfter time.Duration
}

// JobQueue keeps pending ids in a list and each job in a hash.
//
//	<prefix>:queue:pending   list of job ids, FIFO
//	<prefix>:job:<id>        hash: state, request, created_at, started_at
//	<prefix>:receipt:<id>    hash: state, failure_reason, request, finished_at
//
// BLPOP removes an id for good, so a job is delivered at most once. State
// changes go through Lua scripts that check the current state first.
type JobQueue struct {
	client *Client
	cfg    JobQueueConfig
}

func NewJobQueue(client *Client, cfg JobQueueConfig) *JobQueue {
	if cfg.Prefix == "" {
		cfg.Prefix = "scrape"
	}
	if cfg.ReceiptTTL <= 0 {
		cfg.ReceiptTTL = 5 * time.Minute
	}
	if cfg.AbandonAfter <= 0 {
		cfg.AbandonAfter = time.Hour
	}
	return &JobQueue{client: client, cfg: cfg}
}

func (q *JobQueue) pendingKey() string          { return q.cfg.Prefix + ":queue:pending" }
func (q *JobQueue) jobKey(id string) string     { return q.cfg.Prefix + ":job:" + id }
func (q *JobQueue) receiptKey(id string) string { return q.cfg.Prefix + ":receipt:" + id }

var luaActivate = redis.NewScript(`
if redis.call("HGET", KEYS[1], "state") ~= "queued" then
	return 0
end
redis.call("HSET", KEYS[1], "state", "active", "started_at", ARGV[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 1`)

var luaFinish = redis.NewScript(`
if redis.call("HGET", KEYS[1], "state") ~= "active" then
	return 0
end
local req = redis.call("HGET", KEYS[1], "request")
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[2], "state", ARGV[1], "failure_reason", ARGV[2], "request", req, "finished_at", ARGV[3])
redis.call("PEXPIRE", KEYS[2], ARGV[4])
return 1`)

func (q *JobQueue) Enqueue(ctx context.Context, req model.LookupRequest) (string, error) {
	id := ulid.Make().String()
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	key := q.jobKey(id)
	_, err = q.client.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"state", string(model.JobStateQueued),
			"request", string(payload),
			"created_at", time.Now().UTC().Format(time.RFC3339Nano),
		)
		pipe.PExpire(ctx, key, q.cfg.AbandonAfter)
		pipe.RPush(ctx, q.pendingKey(), id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

func (q *JobQueue) Dequeue(ctx context.Context, block time.Duration) (*model.Job, error) {
	res, err := q.client.cli.BLPop(ctx, block, q.pendingKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrQueueEmpty
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	id := res[1]
	key := q.jobKey(id)

	// BLPOP is not interrupted by cancellation, so an id can arrive after
	// the caller gave up. From here on the id must either be activated or
	// put back, whatever ctx says.
	hold, cancel := context.WithTimeout(context.WithoutCancel(ctx), handoffTimeout)
	defer cancel()
	if ctx.Err() != nil {
		if err := q.requeue(hold, id); err != nil {
			return nil, err
		}
		return nil, ctx.Err()
	}

	now := time.Now().UTC()
	ok, err := luaActivate.Run(hold, q.client.cli, []string{key},
		now.Format(time.RFC3339Nano), q.cfg.AbandonAfter.Milliseconds()).Int()
	if err != nil {
		err = fmt.Errorf("activate job %s: %w", id, err)
		if rerr := q.requeue(hold, id); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}
	if ok == 0 {
		// The job hash expired while the id waited in the list.
		return nil, domain.ErrQueueEmpty
	}

	vals, err := q.client.cli.HGetAll(hold, key).Result()
	if err != nil {
		// Active but unreadable: close it out so pollers see a terminal state.
		reason := fmt.Sprintf("load job: %v", err)
		if ferr := q.finish(hold, id, model.JobStateFailed, reason); ferr != nil {
			return nil, errors.Join(fmt.Errorf("load job %s: %w", id, err), ferr)
		}
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return decodeJob(id, vals)
}

// requeue puts an id that was popped but never activated back at the head
// of the pending list, so it keeps its place in line.
func (q *JobQueue) requeue(ctx context.Context, id string) error {
	if err := q.client.cli.LPush(ctx, q.pendingKey(), id).Err(); err != nil {
		return fmt.Errorf("requeue job %s: %w", id, err)
	}
	return nil
}

func (q *JobQueue) Ack(ctx context.Context, jobID string) error {
	return q.finish(ctx, jobID, model.JobStateCompleted, "")
}

func (q *JobQueue) Nack(ctx context.Context, jobID string, reason string) error {
	return q.finish(ctx, jobID, model.JobStateFailed, reason)
}

func (q *JobQueue) finish(ctx context.Context, jobID string, state model.JobState, reason string) error {
	ok, err := luaFinish.Run(ctx, q.client.cli,
		[]string{q.jobKey(jobID), q.receiptKey(jobID)},
		string(state), reason, time.Now().UTC().Format(time.RFC3339Nano), q.cfg.ReceiptTTL.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("finish job %s: %w", jobID, err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: job %s is not active", domain.ErrInvalidTransition, jobID)
	}
	return nil
}

func (q *JobQueue) Get(ctx context.Context, jobID string) (*model.Job, *model.JobReceipt, error) {
	vals, err := q.client.cli.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return nil, nil, err
	}
	if len(vals) > 0 {
		job, err := decodeJob(jobID, vals)
		return job, nil, err
	}

	vals, err = q.client.cli.HGetAll(ctx, q.receiptKey(jobID)).Result()
	if err != nil {
		return nil, nil, err
	}
	if len(vals) == 0 {
		return nil, nil, domain.ErrNotFound
	}
	rc := &model.JobReceipt{
		ID:            jobID,
		State:         model.JobState(vals["state"]),
		FailureReason: vals["failure_reason"],
		FinishedAt:    parseTime(vals["finished_at"]),
	}
	if err := json.Unmarshal([]byte(vals["request"]), &rc.Request); err != nil {
		return nil, nil, fmt.Errorf("decode receipt %s: %w", jobID, err)
	}
	return nil, rc, nil
}

// Depth is the number of jobs waiting to be dequeued.
func (q *JobQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.cli.LLen(ctx, q.pendingKey()).Result()
}

func decodeJob(id string, vals map[string]string) (*model.Job, error) {
	job := &model.Job{
		ID:        id,
		State:     model.JobState(vals["state"]),
		CreatedAt: parseTime(vals["created_at"]),
		StartedAt: parseTime(vals["started_at"]),
	}
	if err := json.Unmarshal([]byte(vals["request"]), &job.Request); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
