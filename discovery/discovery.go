package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

var ErrProcessNotFound = errors.New("could not find host process")

// Candidate is what a search filter is matched against.
type Candidate struct {
	PID     int32
	Name    string
	Exe     string
	Cmdline []string
}

func (c Candidate) matchText() string {
	return strings.ToLower(fmt.Sprintf("%s %s %q", c.Name, c.Exe, c.Cmdline))
}

// Match returns the first candidate, other than self, whose name, executable path or command line contains the filter, ignoring case.
func Match(candidates []Candidate, filter string, self int32) (Candidate, bool) {
	filter = strings.ToLower(filter)
	for _, c := range candidates {
		if c.PID == self {
			continue
		}
		if strings.Contains(c.matchText(), filter) {
			return c, true
		}
	}
	return Candidate{}, false
}

// Find searches the running processes for the first one matching the filter.
func Find(ctx context.Context, log *zap.SugaredLogger, filter string) (int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing processes: %w", err)
	}

	candidates := make([]Candidate, 0, len(procs))
	for _, p := range procs {
		// processes can exit or be unreadable mid-scan, match on whatever is available
		name, _ := p.NameWithContext(ctx)
		exe, _ := p.ExeWithContext(ctx)
		cmdline, _ := p.CmdlineSliceWithContext(ctx)
		candidates = append(candidates, Candidate{PID: p.Pid, Name: name, Exe: exe, Cmdline: cmdline})
	}

	c, ok := Match(candidates, filter, int32(os.Getpid()))
	if !ok {
		return 0, fmt.Errorf("%w matching %q", ErrProcessNotFound, filter)
	}
	log.Named("discovery").Infof("host found as pid %d -> %s (%s)", c.PID, c.Exe, c.Name)
	return c.PID, nil
}
