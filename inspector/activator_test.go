package inspector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	log *zap.SugaredLogger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}

	log = l.Sugar()
}

// fakeSockets returns its snapshots in order, repeating the last one.
type fakeSockets struct {
	mut       sync.Mutex
	snapshots []PortSet
	calls     int
	err       error
}

func (f *fakeSockets) Listening(ctx context.Context, pid int32) (PortSet, error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls
	if i >= len(f.snapshots) {
		i = len(f.snapshots) - 1
	}
	f.calls++
	return f.snapshots[i], nil
}

type fakeProber map[uint16]bool

func (f fakeProber) Probe(ctx context.Context, port uint16) bool { return f[port] }

type fakeSignaler struct {
	signaled []int32
	err      error
}

func (f *fakeSignaler) Signal(pid int32) error {
	f.signaled = append(f.signaled, pid)
	return f.err
}

func newTestActivator(sockets SocketTable, prober Prober, signaler Signaler, opts ...ActivatorOption) *Activator {
	opts = append([]ActivatorOption{WithSignaler(signaler), WithGracePeriod(0)}, opts...)
	return NewActivator(log, sockets, prober, opts...)
}

func TestActivateAlreadyActive(t *testing.T) {
	sockets := &fakeSockets{snapshots: []PortSet{{8080, 9229, 3000}}}
	signaler := &fakeSignaler{}
	a := newTestActivator(sockets, fakeProber{9229: true}, signaler)

	port, err := a.Activate(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, uint16(9229), port)
	assert.Empty(t, signaler.signaled)
	assert.Equal(t, 1, sockets.calls)

	// activating again must not signal either
	port, err = a.Activate(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, uint16(9229), port)
	assert.Empty(t, signaler.signaled)
}

func TestActivateMultipleAlreadyActive(t *testing.T) {
	sockets := &fakeSockets{snapshots: []PortSet{{9229, 9230}}}
	signaler := &fakeSignaler{}
	a := newTestActivator(sockets, fakeProber{9229: true, 9230: true}, signaler)

	_, err := a.Activate(context.Background(), 42)
	var ambErr *AmbiguousEndpointError
	require.True(t, errors.As(err, &ambErr))
	assert.Equal(t, PortSet{9229, 9230}, ambErr.Candidates)
	assert.Empty(t, signaler.signaled)
}

func TestActivateSingleNewPort(t *testing.T) {
	cases := []struct {
		name   string
		before PortSet
		after  PortSet
		exp    uint16
	}{
		{name: "no ports before", before: PortSet{}, after: PortSet{9229}, exp: 9229},
		{name: "one unrelated port before", before: PortSet{8080}, after: PortSet{8080, 9229}, exp: 9229},
		{name: "new port first", before: PortSet{8080, 3000}, after: PortSet{9229, 3000, 8080}, exp: 9229},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			signaler := &fakeSignaler{}
			a := newTestActivator(&fakeSockets{snapshots: []PortSet{c.before, c.after}}, fakeProber{}, signaler)

			port, err := a.Activate(context.Background(), 7)
			require.NoError(t, err)
			assert.Equal(t, c.exp, port)
			assert.Equal(t, []int32{7}, signaler.signaled)
		})
	}
}

func TestActivateAmbiguous(t *testing.T) {
	cases := []struct {
		name          string
		before        PortSet
		after         PortSet
		expCandidates PortSet
	}{
		{name: "nothing new", before: PortSet{8080}, after: PortSet{8080}},
		{name: "nothing at all", before: PortSet{}, after: PortSet{}},
		{name: "two new ports", before: PortSet{}, after: PortSet{9229, 9230}, expCandidates: PortSet{9229, 9230}},
		{name: "port went away", before: PortSet{8080}, after: PortSet{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a := newTestActivator(&fakeSockets{snapshots: []PortSet{c.before, c.after}}, fakeProber{}, &fakeSignaler{})

			_, err := a.Activate(context.Background(), 7)
			var ambErr *AmbiguousEndpointError
			require.True(t, errors.As(err, &ambErr), "unexpected error %v", err)
			assert.Equal(t, c.before, ambErr.Before)
			assert.Equal(t, c.after, ambErr.After)
			if c.expCandidates != nil {
				assert.Equal(t, c.expCandidates, ambErr.Candidates)
			}
			assert.NotErrorIs(t, err, ErrActivationTimeout)
		})
	}
}

func TestActivateProbePicksInspectorAmongNewPorts(t *testing.T) {
	sockets := &fakeSockets{snapshots: []PortSet{{8080}, {8080, 5000, 9229}}}
	// 5000 is an unrelated listener that appeared at the same time
	prober := fakeProber{9229: true}
	a := newTestActivator(sockets, prober, &fakeSignaler{})

	port, err := a.Activate(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint16(9229), port)
}

func TestActivateNarrowsLivePortsToNewOnes(t *testing.T) {
	sockets := &fakeSockets{snapshots: []PortSet{{8080}, {8080, 9229}}}
	prober := &flippingProber{after: fakeProber{8080: true, 9229: true}}
	a := newTestActivator(sockets, prober, &fakeSignaler{})
	a.signaler = prober

	port, err := a.Activate(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint16(9229), port)
}

// flippingProber answers nothing until it has been used as the signaler.
type flippingProber struct {
	signaled bool
	after    fakeProber
}

func (f *flippingProber) Probe(ctx context.Context, port uint16) bool {
	return f.signaled && f.after[port]
}

func (f *flippingProber) Signal(pid int32) error {
	f.signaled = true
	return nil
}

func TestActivateSignalError(t *testing.T) {
	sigErr := errors.New("operation not permitted")
	a := newTestActivator(&fakeSockets{snapshots: []PortSet{{}}}, fakeProber{}, &fakeSignaler{err: sigErr})

	_, err := a.Activate(context.Background(), 1)
	var actErr *ActivationSignalError
	require.True(t, errors.As(err, &actErr))
	assert.Equal(t, int32(1), actErr.PID)
	assert.ErrorIs(t, err, sigErr)
}

func TestActivateSocketTableError(t *testing.T) {
	tableErr := &SocketTableError{PID: 3, Err: errors.New("permission denied")}
	signaler := &fakeSignaler{}
	a := newTestActivator(&fakeSockets{err: tableErr}, fakeProber{}, signaler)

	_, err := a.Activate(context.Background(), 3)
	var stErr *SocketTableError
	require.True(t, errors.As(err, &stErr))
	assert.Empty(t, signaler.signaled)
}

func TestActivateRetriesUntilPortAppears(t *testing.T) {
	sockets := &fakeSockets{snapshots: []PortSet{{}, {}, {}, {9229}}}
	a := newTestActivator(sockets, fakeProber{9229: true}, &fakeSignaler{}, WithTimeout(30*time.Second))

	port, err := a.Activate(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint16(9229), port)
	assert.Equal(t, 4, sockets.calls)
}

func TestActivateTimeout(t *testing.T) {
	sockets := &fakeSockets{snapshots: []PortSet{{8080}}}
	a := newTestActivator(sockets, fakeProber{}, &fakeSignaler{}, WithTimeout(time.Second))

	_, err := a.Activate(context.Background(), 7)
	require.ErrorIs(t, err, ErrActivationTimeout)
	var ambErr *AmbiguousEndpointError
	require.True(t, errors.As(err, &ambErr))
	assert.Equal(t, PortSet{8080}, ambErr.Before)
	assert.Equal(t, PortSet{8080}, ambErr.After)
	assert.GreaterOrEqual(t, sockets.calls, 2)
}

func TestActivateTimeoutStopsOnPermanentAmbiguity(t *testing.T) {
	sockets := &fakeSockets{snapshots: []PortSet{{}, {9229, 9230}}}
	a := newTestActivator(sockets, fakeProber{}, &fakeSignaler{}, WithTimeout(30*time.Second))

	_, err := a.Activate(context.Background(), 7)
	var ambErr *AmbiguousEndpointError
	require.True(t, errors.As(err, &ambErr))
	assert.NotErrorIs(t, err, ErrActivationTimeout)
	assert.Equal(t, 2, sockets.calls)
}

func TestActivateWithoutProbe(t *testing.T) {
	t.Run("single listener is taken as is", func(t *testing.T) {
		signaler := &fakeSignaler{}
		a := newTestActivator(&fakeSockets{snapshots: []PortSet{{5000}}}, nil, signaler, WithoutProbe())
		port, err := a.Activate(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, uint16(5000), port)
		assert.Empty(t, signaler.signaled)
	})
	t.Run("diff", func(t *testing.T) {
		signaler := &fakeSignaler{}
		a := newTestActivator(&fakeSockets{snapshots: []PortSet{{5000, 5001}, {5000, 5001, 9229}}}, nil, signaler, WithoutProbe())
		port, err := a.Activate(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, uint16(9229), port)
		assert.Equal(t, []int32{7}, signaler.signaled)
	})
}

func TestActivateGracePeriodHonorsContext(t *testing.T) {
	a := NewActivator(log, &fakeSockets{snapshots: []PortSet{{}}}, fakeProber{}, WithSignaler(&fakeSignaler{}), WithGracePeriod(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := a.Activate(ctx, 7)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPortSet(t *testing.T) {
	s := NewPortSet(3, 1, 3, 2)
	assert.Equal(t, PortSet{3, 1, 2}, s)
	assert.True(t, s.Contains(2))
	assert.False(t, s.Contains(4))
	assert.Equal(t, PortSet{3}, s.Diff(PortSet{1, 2}))
	assert.Equal(t, PortSet{}, s.Diff(s))
	assert.Equal(t, PortSet{1, 2}, s.Intersect(PortSet{2, 1, 9}))
}
