package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime/debug"
	"sync"
)

// Scheduler runs a refresh without the caller waiting for it.
type Scheduler interface {
	Schedule(task func(context.Context))
}

// GoroutineScheduler runs tasks on goroutines of the current process. It is
// used by long-lived servers and tests.
type GoroutineScheduler struct {
	ctx    context.Context
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewGoroutineScheduler runs tasks with ctx, which should outlive any single
// request.
func NewGoroutineScheduler(ctx context.Context, logger *slog.Logger) *GoroutineScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoroutineScheduler{ctx: ctx, logger: logger}
}

// Schedule starts task and returns immediately.
func (s *GoroutineScheduler) Schedule(task func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled task panicked",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		task(s.ctx)
	}()
}

// Wait blocks until every scheduled task has returned.
func (s *GoroutineScheduler) Wait() {
	s.wg.Wait()
}

// ProcessScheduler launches a detached copy of the current binary that runs
// the refresh command, so the refresh survives the short-lived query process.
// The task passed to Schedule is not run; the child performs the same
// lock-guarded refresh.
type ProcessScheduler struct {
	Executable string
	Args       []string
	Env        []string
	Logger     *slog.Logger

	start func(*exec.Cmd) error
}

// NewProcessScheduler targets the running executable with args.
func NewProcessScheduler(args []string, logger *slog.Logger) (*ProcessScheduler, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("refresh: resolve executable: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessScheduler{Executable: exe, Args: args, Logger: logger}, nil
}

// Schedule starts the child and does not wait for it.
func (s *ProcessScheduler) Schedule(_ func(context.Context)) {
	if err := s.launch(); err != nil {
		s.Logger.Error("background refresh launch failed", slog.Any("error", err))
	}
}

func (s *ProcessScheduler) launch() error {
	if s.Executable == "" {
		return errors.New("refresh: executable is required")
	}

	cmd := exec.Command(s.Executable, s.Args...)
	// Nil stdio is connected to the null device.
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	cmd.SysProcAttr = detachedProcAttr()

	start := s.start
	if start == nil {
		start = (*exec.Cmd).Start
	}
	if err := start(cmd); err != nil {
		return fmt.Errorf("refresh: start %s: %w", s.Executable, err)
	}

	s.Logger.Debug("background refresh launched", slog.Any("args", s.Args))
	if cmd.Process != nil {
		return cmd.Process.Release()
	}
	return nil
}
