package threadpool

import "context"

// Job is a unit of work executed by a pool worker. The context passed to Run
// is the pool context and is cancelled when the pool stops.
type Job interface {
	Run(ctx context.Context)
}

type funcRunner struct {
	task func(ctx context.Context)
}

func (f *funcRunner) Run(ctx context.Context) {
	f.task(ctx)
}

// FuncRunner wraps a plain function as a Job
func FuncRunner(job func(ctx context.Context)) Job {
	return &funcRunner{
		task: job,
	}
}
