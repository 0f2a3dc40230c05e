package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/platform/websocket"
)

// SubscriberCounter reports how many live clients follow a topic.
type SubscriberCounter interface {
	SubscriberCount(topic string) int
}

// SnapshotPublisher is the part of Service the job drives.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context) error
}

// SnapshotJob periodically pushes the ordered waiting list to live clients
// so countdowns can resync with the server.
type SnapshotJob struct {
	source  SnapshotPublisher
	subs    SubscriberCounter
	cron    *cron.Cron
	timeout time.Duration
	logger  zerolog.Logger
}

func NewSnapshotJob(source SnapshotPublisher, subs SubscriberCounter, schedule string, logger zerolog.Logger) (*SnapshotJob, error) {
	logger = logger.With().Str("job", "queue-snapshot").Logger()
	cl := cronLogger{logger: logger}
	j := &SnapshotJob{
		source:  source,
		subs:    subs,
		timeout: 5 * time.Second,
		logger:  logger,
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
	}
	if _, err := j.cron.AddFunc(schedule, j.Run); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", schedule, err)
	}
	return j, nil
}

func (j *SnapshotJob) Start() {
	j.cron.Start()
	j.logger.Info().Msg("queue snapshot job started")
}

// Stop halts scheduling and waits for a running snapshot to finish or ctx
// to end.
func (j *SnapshotJob) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Run publishes one snapshot. It does nothing while nobody is listening.
func (j *SnapshotJob) Run() {
	if j.subs != nil && j.subs.SubscriberCount(websocket.TopicQueue) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.source.PublishSnapshot(ctx); err != nil {
		j.logger.Error().Err(err).Msg("failed to publish queue snapshot")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
