package hook

import (
	"context"
	"fmt"
	"net"
	"time"
)

const sendTimeout = 2 * time.Second

// Send delivers one event: connect, write a line, close. There is no reply
// and no retry.
func Send(socketPath string, ev Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return SendContext(ctx, socketPath, ev)
}

// SendContext is Send with a caller-supplied deadline.
func SendContext(ctx context.Context, socketPath string, ev Event) error {
	line, err := ev.MarshalLine()
	if err != nil {
		return fmt.Errorf("encode hook event: %w", err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("dial hook socket %s: %w", socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(line); err != nil {
		return fmt.Errorf("write hook event: %w", err)
	}
	return nil
}
