package discovery

import (
	"context"
	"os"
	"os/exec"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMatch(t *testing.T) {
	candidates := []Candidate{
		{PID: 10, Name: "bash", Exe: "/usr/bin/bash", Cmdline: []string{"bash"}},
		{PID: 11, Name: "jsinject", Exe: "/usr/local/bin/jsinject", Cmdline: []string{"jsinject", "--search", "code"}},
		{PID: 12, Name: "Code Helper (Plugin)", Exe: "/Applications/Visual Studio Code.app/Contents/Frameworks/Code Helper (Plugin)", Cmdline: []string{"--type=utility"}},
		{PID: 13, Name: "node", Exe: "/usr/bin/node", Cmdline: []string{"node", "/srv/app/server.js"}},
	}

	cases := []struct {
		name   string
		filter string
		self   int32
		expPID int32
		expOK  bool
	}{
		{name: "matches name ignoring case", filter: "CODE HELPER", self: 11, expPID: 12, expOK: true},
		{name: "skips self", filter: "code", self: 11, expPID: 12, expOK: true},
		{name: "first match wins", filter: "code", self: 1, expPID: 11, expOK: true},
		{name: "matches exe path", filter: "/usr/bin/node", self: 1, expPID: 13, expOK: true},
		{name: "matches command line", filter: "server.js", self: 1, expPID: 13, expOK: true},
		{name: "no match", filter: "python", self: 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := Match(candidates, c.filter, c.self)
			assert.Equal(t, c.expOK, ok)
			assert.Equal(t, c.expPID, got.PID)
		})
	}
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop().Sugar()

	marker := uuid.NewString()
	cmd := exec.Command("sh", "-c", "sleep 30; true # "+marker)
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	pid, err := Find(ctx, log, marker)
	require.NoError(t, err)
	assert.Equal(t, int32(cmd.Process.Pid), pid)

	_, err = Find(ctx, log, uuid.NewString())
	assert.ErrorIs(t, err, ErrProcessNotFound)
	assert.NotEqual(t, int32(os.Getpid()), pid)
}
