package injector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/guseggert/jsinject/discovery"
	"github.com/guseggert/jsinject/inspector"
	"github.com/guseggert/jsinject/manifest"
	"github.com/guseggert/jsinject/session"
	"go.uber.org/zap"
)

// Injector activates the inspector of a running process and drives it over the debug protocol.
type Injector struct {
	Logger *zap.SugaredLogger

	pid    int32
	search string

	sockets        inspector.SocketTable
	manifestClient *manifest.Client
	activatorOpts  []inspector.ActivatorOption
	findProcess    func(ctx context.Context, log *zap.SugaredLogger, filter string) (int32, error)

	listDomains   bool
	expression    string
	customPayload []byte

	pollVariable string
	pollInterval time.Duration
	pollCommand  string

	stdout io.Writer
	stderr io.Writer
}

type Option func(i *Injector)

func WithPID(pid int32) Option {
	return func(i *Injector) {
		i.pid = pid
	}
}

// WithSearch targets the first process whose name, executable or command line contains s.
func WithSearch(s string) Option {
	return func(i *Injector) {
		i.search = s
	}
}

func WithSocketTable(t inspector.SocketTable) Option {
	return func(i *Injector) {
		i.sockets = t
	}
}

func WithManifestClient(c *manifest.Client) Option {
	return func(i *Injector) {
		i.manifestClient = c
	}
}

func WithActivatorOptions(opts ...inspector.ActivatorOption) Option {
	return func(i *Injector) {
		i.activatorOpts = append(i.activatorOpts, opts...)
	}
}

// ListDomains prints the protocol domains of the target instead of evaluating anything.
func ListDomains() Option {
	return func(i *Injector) {
		i.listDomains = true
	}
}

func WithExpression(expr string) Option {
	return func(i *Injector) {
		i.expression = expr
	}
}

// WithCustomPayload sends payload verbatim in place of the evaluation request.
func WithCustomPayload(payload []byte) Option {
	return func(i *Injector) {
		i.customPayload = payload
	}
}

// WithPoll polls JSON.stringify(variable) every interval after the payload has been answered.
func WithPoll(variable string, interval time.Duration) Option {
	return func(i *Injector) {
		i.pollVariable = variable
		i.pollInterval = interval
	}
}

// WithPollCommand pipes polled values into the stdin of command instead of stdout.
func WithPollCommand(command string) Option {
	return func(i *Injector) {
		i.pollCommand = command
	}
}

func WithOutput(stdout, stderr io.Writer) Option {
	return func(i *Injector) {
		i.stdout = stdout
		i.stderr = stderr
	}
}

func New(log *zap.SugaredLogger, opts ...Option) (*Injector, error) {
	i := &Injector{
		Logger:       log.Named("injector"),
		sockets:      inspector.SystemSocketTable{},
		findProcess:  discovery.Find,
		pollInterval: time.Second,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
	}
	for _, o := range opts {
		o(i)
	}
	if i.manifestClient == nil {
		i.manifestClient = manifest.NewClient(log)
	}

	switch {
	case i.pid == 0 && i.search == "":
		return nil, errors.New("either a pid or a search string is required")
	case i.pid != 0 && i.search != "":
		return nil, errors.New("a pid and a search string are mutually exclusive")
	case i.pollVariable != "" && i.pollInterval <= 0:
		return nil, fmt.Errorf("poll interval must be positive, got %s", i.pollInterval)
	}
	return i, nil
}

// Run performs one injection. Interrupting it through ctx is a clean exit.
func (i *Injector) Run(ctx context.Context) error {
	err := i.run(ctx)
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		i.Logger.Info("interrupted, exiting")
		return nil
	}
	return err
}

func (i *Injector) run(ctx context.Context) error {
	pid, err := i.resolvePID(ctx)
	if err != nil {
		return err
	}

	activator := inspector.NewActivator(i.Logger, i.sockets, i.manifestClient, i.activatorOpts...)
	port, err := activator.Activate(ctx, pid)
	if err != nil {
		return fmt.Errorf("activating inspector of process %d: %w", pid, err)
	}

	if i.listDomains {
		domains, err := i.manifestClient.FetchDomains(ctx, port)
		if err != nil {
			return fmt.Errorf("fetching domains: %w", err)
		}
		return manifest.WriteDomains(i.stdout, domains)
	}

	debugURL, err := i.manifestClient.FetchDebugURL(ctx, port)
	if err != nil {
		return fmt.Errorf("fetching debug URL: %w", err)
	}

	s, err := session.Dial(ctx, i.Logger, debugURL, session.WithOutput(i.stdout))
	if err != nil {
		return err
	}
	defer s.Close()

	if i.customPayload != nil {
		_, err = s.SendPayloadAndAwait(ctx, i.customPayload)
	} else {
		_, err = s.EvalAndAwait(ctx, i.expression)
	}
	if err != nil {
		return err
	}

	if i.pollVariable == "" {
		return s.ReadLoop(ctx)
	}
	return i.poll(ctx, s)
}

func (i *Injector) resolvePID(ctx context.Context) (int32, error) {
	if i.pid != 0 {
		return i.pid, nil
	}
	return i.findProcess(ctx, i.Logger, i.search)
}

func (i *Injector) poll(ctx context.Context, s *session.Session) error {
	var sink session.Sink = session.NewWriterSink(i.stdout)
	if i.pollCommand != "" {
		cmdSink, err := session.StartCommandSink(i.Logger, i.pollCommand, i.stdout, i.stderr)
		if err != nil {
			return err
		}
		sink = cmdSink
	}

	err := s.Poll(ctx, i.pollVariable, i.pollInterval, sink)
	closeErr := sink.Close()
	if closeErr == nil {
		return err
	}
	// the child shares our process group and sees the same interrupt
	if ctx.Err() != nil {
		i.Logger.Debugf("closing poll sink: %s", closeErr)
		return err
	}
	return errors.Join(err, closeErr)
}
