package session

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// Sink receives polled values, one per call.
type Sink interface {
	WriteResult(value string) error
	Close() error
}

// WriterSink writes each value as a line.
type WriterSink struct {
	w io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) WriteResult(value string) error {
	_, err := fmt.Fprintln(s.w, value)
	return err
}

func (s *WriterSink) Close() error { return nil }

// CommandSink pipes each value as a line into the stdin of a child process.
type CommandSink struct {
	Log *zap.SugaredLogger

	cmd   *exec.Cmd
	stdin io.WriteCloser

	closeOnce sync.Once
	closeErr  error
}

// StartCommandSink runs command through the system shell. The child's stdout and stderr go to the given writers.
func StartCommandSink(log *zap.SugaredLogger, command string, stdout, stderr io.Writer) (*CommandSink, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/C", command)
	} else {
		cmd = exec.Command("sh", "-c", command)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdin of %q: %w", command, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %q: %w", command, err)
	}

	s := &CommandSink{
		Log:   log.Named("command_sink"),
		cmd:   cmd,
		stdin: stdin,
	}
	s.Log.Debugw("started poll command", "Command", command, "PID", cmd.Process.Pid)
	return s, nil
}

func (s *CommandSink) WriteResult(value string) error {
	_, err := io.WriteString(s.stdin, value+"\n")
	if err != nil {
		return fmt.Errorf("writing to stdin of process %d: %w", s.cmd.Process.Pid, err)
	}
	return nil
}

// Close closes the child's stdin and waits for it to exit.
func (s *CommandSink) Close() error {
	s.closeOnce.Do(func() {
		if err := s.stdin.Close(); err != nil {
			s.Log.Debugf("error closing stdin: %s", err)
		}
		err := s.cmd.Wait()
		s.Log.Debugf("process %d exited with code %d", s.cmd.Process.Pid, s.cmd.ProcessState.ExitCode())
		if err != nil {
			s.closeErr = fmt.Errorf("waiting for poll command: %w", err)
		}
	})
	return s.closeErr
}
