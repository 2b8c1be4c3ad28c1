package importer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Worker runs an import on a fixed interval and on demand.
type Worker struct {
	importer *Importer
	request  Request
	interval time.Duration
	timeout  time.Duration
	trigger  chan Request
	logger   zerolog.Logger
}

// NewWorker imports req every interval, starting with one run as soon as Run is called.
// timeout bounds each run.
func NewWorker(importer *Importer, req Request, interval, timeout time.Duration, logger zerolog.Logger) *Worker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	w := &Worker{
		importer: importer,
		request:  req,
		interval: interval,
		timeout:  timeout,
		trigger:  make(chan Request, 1),
		logger:   logger.With().Str("component", "import_worker").Logger(),
	}
	w.enqueue(req)
	return w
}

// enqueue schedules an extra run. It returns false if one is already pending.
func (w *Worker) enqueue(req Request) bool {
	select {
	case w.trigger <- req:
		return true
	default:
		return false
	}
}

// Run blocks until ctx is cancelled. A non-positive interval disables the schedule; queued runs still happen.
func (w *Worker) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("import worker stopping")
			return ctx.Err()
		case <-tick:
			w.handle(ctx, w.request)
		case req := <-w.trigger:
			w.handle(ctx, req)
		}
	}
}

func (w *Worker) handle(ctx context.Context, req Request) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if _, err := w.importer.Import(ctx, req); err != nil {
		w.logger.Warn().Err(err).Str("source", req.Source).Msg("scheduled import failed")
	}
}
