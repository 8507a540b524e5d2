package inspector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Prober reports whether a port serves the inspector's discovery endpoint.
type Prober interface {
	Probe(ctx context.Context, port uint16) bool
}

// Signaler delivers the activation signal to a process.
type Signaler interface {
	Signal(pid int32) error
}

// Activator turns on the inspector of a running process and infers the port it listens on.
type Activator struct {
	Logger *zap.SugaredLogger

	sockets  SocketTable
	prober   Prober
	signaler Signaler

	probe       bool
	gracePeriod time.Duration
	timeout     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

type ActivatorOption func(a *Activator)

func WithSignaler(s Signaler) ActivatorOption {
	return func(a *Activator) {
		a.signaler = s
	}
}

// WithGracePeriod sets how long to wait after signaling before looking for the new port.
func WithGracePeriod(d time.Duration) ActivatorOption {
	return func(a *Activator) {
		a.gracePeriod = d
	}
}

// WithTimeout keeps looking for the inspector port, with backoff, until d has elapsed.
// A zero timeout looks exactly once.
func WithTimeout(d time.Duration) ActivatorOption {
	return func(a *Activator) {
		a.timeout = d
	}
}

// WithoutProbe infers the port purely from the difference between the two snapshots.
func WithoutProbe() ActivatorOption {
	return func(a *Activator) {
		a.probe = false
	}
}

func NewActivator(log *zap.SugaredLogger, sockets SocketTable, prober Prober, opts ...ActivatorOption) *Activator {
	a := &Activator{
		Logger:      log.Named("activator"),
		sockets:     sockets,
		prober:      prober,
		signaler:    usr1Signaler{},
		probe:       prober != nil,
		gracePeriod: 3 * time.Second,
		sleep:       sleep,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Activate returns the inspector port of the process, signaling it first if no listening port already serves the inspector.
func (a *Activator) Activate(ctx context.Context, pid int32) (uint16, error) {
	before, err := a.sockets.Listening(ctx, pid)
	if err != nil {
		return 0, err
	}
	a.Logger.Debugw("listening ports before activation", "PID", pid, "Ports", []uint16(before))

	port, active, err := a.alreadyActive(ctx, before)
	if err != nil {
		return 0, err
	}
	if active {
		a.Logger.Infof("inspection already enabled on port %d", port)
		return port, nil
	}

	a.Logger.Infof("sending SIGUSR1 to process %d", pid)
	if err := a.signaler.Signal(pid); err != nil {
		return 0, &ActivationSignalError{PID: pid, Err: err}
	}

	a.Logger.Infof("waiting %s for the debugger to start ...", a.gracePeriod)
	if err := a.sleep(ctx, a.gracePeriod); err != nil {
		return 0, err
	}

	return a.resolveWithRetry(ctx, pid, before)
}

func (a *Activator) alreadyActive(ctx context.Context, before PortSet) (uint16, bool, error) {
	if !a.probe {
		if len(before) == 1 {
			return before[0], true, nil
		}
		return 0, false, nil
	}
	live := a.live(ctx, before)
	switch len(live) {
	case 0:
		return 0, false, nil
	case 1:
		return live[0], true, nil
	default:
		return 0, false, &AmbiguousEndpointError{Before: before, After: before, Candidates: live}
	}
}

// live returns the ports that answer the probe, in snapshot order.
func (a *Activator) live(ctx context.Context, ports PortSet) PortSet {
	out := PortSet{}
	for _, p := range ports {
		if a.prober.Probe(ctx, p) {
			out = append(out, p)
		}
	}
	return out
}

func (a *Activator) candidates(ctx context.Context, before, after PortSet) PortSet {
	added := after.Diff(before)
	if !a.probe {
		return added
	}
	live := a.live(ctx, after)
	switch {
	case len(live) == 0:
		return added
	case len(live) > 1:
		if narrowed := live.Intersect(added); len(narrowed) > 0 {
			return narrowed
		}
	}
	return live
}

func (a *Activator) resolve(ctx context.Context, pid int32, before PortSet) (uint16, error) {
	after, err := a.sockets.Listening(ctx, pid)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	candidates := a.candidates(ctx, before, after)
	a.Logger.Debugw("listening ports after activation", "PID", pid, "Ports", []uint16(after), "Candidates", []uint16(candidates))

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return 0, &AmbiguousEndpointError{Before: before, After: after}
	default:
		return 0, backoff.Permanent(&AmbiguousEndpointError{Before: before, After: after, Candidates: candidates})
	}
}

func (a *Activator) resolveWithRetry(ctx context.Context, pid int32, before PortSet) (uint16, error) {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if a.timeout > 0 {
		b = backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(250*time.Millisecond),
			backoff.WithMaxInterval(2*time.Second),
			backoff.WithMaxElapsedTime(a.timeout),
		)
	}

	port, err := backoff.RetryNotifyWithData(
		func() (uint16, error) { return a.resolve(ctx, pid, before) },
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			a.Logger.Debugf("inspector not up yet, retrying in %s: %s", d, err)
		},
	)
	if err != nil {
		var ambErr *AmbiguousEndpointError
		if a.timeout > 0 && ctx.Err() == nil && errors.As(err, &ambErr) && len(ambErr.Candidates) == 0 {
			return 0, fmt.Errorf("%w after %s: %w", ErrActivationTimeout, a.timeout, err)
		}
		return 0, err
	}
	return port, nil
}
