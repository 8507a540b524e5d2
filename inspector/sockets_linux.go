package inspector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

func checkSocketsReadable(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	if _, err := p.NumFDsWithContext(ctx); err != nil {
		return fmt.Errorf("reading file descriptors: %w", err)
	}
	return nil
}
