package outbox

import (
	"context"

	"sale-service/config"
	"sale-service/internal/events"
	"sale-service/internal/repository"
	"sale-service/pkg/logger"
)

type Runner struct {
	processor *Processor
	done      chan struct{}
}

func NewRunner(processor *Processor) *Runner {
	return &Runner{processor: processor, done: make(chan struct{})}
}

// Start launches the processor; cancel ctx to stop it and Wait to join it.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		defer close(r.done)
		r.processor.Run(ctx)
	}()
}

func (r *Runner) Wait() {
	<-r.done
}

func DefaultProcessor(cfg config.OutboxConfig, scope repository.OutboxScope, publisher events.Publisher, l *logger.Logger) *Processor {
	return NewProcessor(scope, publisher, l, cfg.BatchSize, cfg.Interval)
}
