package session

import (
	"context"
	"fmt"
	"time"
)

// Poll evaluates JSON.stringify(variable) every interval and writes each value to the sink.
// It only returns when the context is canceled, the connection fails, or the sink rejects a value.
func (s *Session) Poll(ctx context.Context, variable string, interval time.Duration, sink Sink) error {
	log := s.Logger.With("Variable", variable)
	log.Infof("polling every %s ...", interval)
	for {
		call := s.builder.PollVariable(variable)
		if err := s.Send(ctx, call); err != nil {
			return err
		}
		msg, err := s.Await(ctx, call.ID)
		if err != nil {
			return err
		}
		err = s.drain(func(m Message) error {
			log.Debugf("frame received while polling: %s", m.Raw)
			return nil
		})
		if err != nil {
			return err
		}

		logResponseProblems(log, msg.Response)
		if err := sink.WriteResult(msg.Response.Value()); err != nil {
			return fmt.Errorf("writing poll result: %w", err)
		}

		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}
