package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"warden-hq/warden/pkg/bundle"
	"warden-hq/warden/pkg/learning"
)

// Job is one per-agent maintenance task.
type Job interface {
	Name() string
	Run(ctx context.Context, agent string) error
}

// JobFunc adapts a function to the Job interface.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context, agent string) error
}

// Name returns the job name.
func (j JobFunc) Name() string { return j.JobName }

// Run invokes the wrapped function.
func (j JobFunc) Run(ctx context.Context, agent string) error { return j.Fn(ctx, agent) }

// AgentLister supplies the agents to run jobs for. The bundle manager
// satisfies it.
type AgentLister interface {
	Agents() []string
}

// Scheduler runs registered jobs on cron cadences.
type Scheduler struct {
	cron   *cron.Cron
	agents AgentLister
	logger *slog.Logger

	mu         sync.Mutex
	agentLocks map[string]*sync.Mutex
	running    bool
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(agents AgentLister, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:       cron.New(),
		agents:     agents,
		logger:     logger.With("component", "schedule"),
		agentLocks: make(map[string]*sync.Mutex),
	}
}

// Add registers a job on a cron cadence. The expression is validated before
// registration.
func (s *Scheduler) Add(cronExpr string, job Job) error {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return fmt.Errorf("invalid cron schedule %q for job %s: %w", cronExpr, job.Name(), err)
	}
	_, err := s.cron.AddFunc(cronExpr, func() {
		s.runForAllAgents(context.Background(), job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.Name(), err)
	}
	s.logger.Info("job scheduled", "job", job.Name(), "cron", cronExpr)
	return nil
}

// Start begins ticking and stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the cron loop. Jobs already running finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
	s.logger.Info("scheduler stopped")
}

// RunNow executes one job immediately across all agents, outside the cron
// cadence. Used by the CLI.
func (s *Scheduler) RunNow(ctx context.Context, job Job) {
	s.runForAllAgents(ctx, job)
}

// runForAllAgents fans out across agents, holding each agent's lock for the
// duration of its run.
func (s *Scheduler) runForAllAgents(ctx context.Context, job Job) {
	agents := s.agents.Agents()
	var wg sync.WaitGroup
	for _, agent := range agents {
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()
			lock := s.agentLock(agent)
			lock.Lock()
			defer lock.Unlock()

			if err := job.Run(ctx, agent); err != nil {
				s.logJobError(job, agent, err)
				return
			}
			s.logger.Info("job completed", "job", job.Name(), "agent", agent)
		}(agent)
	}
	wg.Wait()
}

func (s *Scheduler) agentLock(agent string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.agentLocks[agent]
	if !ok {
		lock = &sync.Mutex{}
		s.agentLocks[agent] = lock
	}
	return lock
}

// logJobError downgrades expected outcomes: a regression rollback or a
// too-small training set is the job working as intended, not a failure.
func (s *Scheduler) logJobError(job Job, agent string, err error) {
	var regression *bundle.RegressionDetectedError
	if errors.As(err, &regression) {
		s.logger.Warn("canary rolled back", "job", job.Name(), "agent", agent, "reason", regression.Reason)
		return
	}
	var insufficient *learning.TrainingDataInsufficientError
	if errors.As(err, &insufficient) {
		s.logger.Info("training skipped",
			"job", job.Name(), "agent", agent,
			"have", insufficient.Have, "need", insufficient.Need)
		return
	}
	s.logger.Error("job failed", "job", job.Name(), "agent", agent, "error", err)
}
