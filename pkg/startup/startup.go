// Package startup brings up the service's external dependencies in
// dependency order, retrying the whole set with Fibonacci backoff.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/clock"
)

type StartupDependency interface {
	GetName() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type StartupStatus int

const (
	StartupStatusPending StartupStatus = iota
	StartupStatusStarted
	StartupStatusStopped
	StartupStatusFailed
)

type Startup struct {
	dependencies map[string]StartupDependency
	added        []string
	started      []string
	statuses     map[string]StartupStatus
	maxAttempts  int
	clock        clock.Clock
	logger       ectologger.Logger
}

func NewStartup(logger ectologger.Logger, maxAttempts int, c clock.Clock) *Startup {
	if c == nil {
		c = clock.New()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Startup{
		dependencies: make(map[string]StartupDependency),
		statuses:     make(map[string]StartupStatus),
		maxAttempts:  maxAttempts,
		clock:        c,
		logger:       logger,
	}
}

// AddDependency registers dependency. Independent dependencies start in the
// order they were added.
func (s *Startup) AddDependency(dependency StartupDependency) {
	name := dependency.GetName()
	if _, ok := s.dependencies[name]; !ok {
		s.added = append(s.added, name)
	}
	s.dependencies[name] = dependency
}

func (s *Startup) Status(name string) StartupStatus {
	return s.statuses[name]
}

// Start starts every dependency after the ones it depends on. When one fails
// the attempt ends, already started dependencies stay up and the rest are
// retried after 1s, 1s, 2s, 3s, 5s...
func (s *Startup) Start(ctx context.Context) error {
	order, err := s.resolve()
	if err != nil {
		return err
	}

	wait, next := time.Second, time.Second
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.logger.WithField("attempt", attempt).Infof("Beginning startup attempt %d/%d", attempt, s.maxAttempts)

		if lastErr = s.startAll(ctx, order); lastErr == nil {
			return nil
		}
		s.logger.WithError(lastErr).Errorf("Startup attempt %d failed", attempt)

		if attempt == s.maxAttempts {
			break
		}
		s.logger.Infof("Retrying startup in %s", wait)
		if err := s.clock.Sleep(ctx, wait); err != nil {
			return err
		}
		wait, next = next, wait+next
	}

	return fmt.Errorf("startup failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Startup) startAll(ctx context.Context, order []string) error {
	for _, name := range order {
		if s.statuses[name] == StartupStatusStarted {
			continue
		}

		log := s.logger.WithField("dependency", name)
		log.Infof("Starting dependency '%s'", name)
		if err := s.dependencies[name].Start(ctx); err != nil {
			s.statuses[name] = StartupStatusFailed
			return fmt.Errorf("dependency '%s': %w", name, err)
		}
		s.statuses[name] = StartupStatusStarted
		s.started = append(s.started, name)
	}
	return nil
}

// resolve orders dependencies so each comes after everything it depends on
func (s *Startup) resolve() ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(s.dependencies))
	order := make([]string, 0, len(s.dependencies))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle: %v", append(path, name))
		}
		state[name] = visiting
		for _, upstream := range s.dependencies[name].DependsOn() {
			if _, ok := s.dependencies[upstream]; !ok {
				return fmt.Errorf("dependency '%s' requires unknown dependency '%s'", name, upstream)
			}
			if err := visit(upstream, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range s.added {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Stop stops started dependencies in reverse start order. Every dependency
// is stopped even if an earlier one fails; the first error is returned.
func (s *Startup) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(s.started) - 1; i >= 0; i-- {
		name := s.started[i]
		if s.statuses[name] != StartupStatusStarted {
			continue
		}

		log := s.logger.WithField("dependency", name)
		log.Infof("Stopping dependency '%s'", name)
		if err := s.dependencies[name].Stop(ctx); err != nil {
			log.WithError(err).Errorf("Failed to stop dependency '%s'", name)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.statuses[name] = StartupStatusStopped
	}
	s.started = nil
	return firstErr
}
