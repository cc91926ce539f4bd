package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"
	queue "github.com/mutablelogic/go-dqueue/pkg/queue"
)

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// execHandler runs a command for each entry, with the payload on stdin and
// the entry identifier and type in the environment. A non-zero exit status
// fails the entry.
func execHandler(name string, args ...string) queue.HandlerFunc {
	return func(ctx context.Context, entry *dqueue.Entry) error {
		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Stdin = bytes.NewReader(entry.Payload)
		cmd.Stdout = os.Stdout
		cmd.Stderr = &stderr
		cmd.Env = append(os.Environ(),
			fmt.Sprintf("DQUEUE_ID=%d", entry.Id),
			fmt.Sprintf("DQUEUE_TYPE=%s", entry.Type),
		)
		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("%s: %w: %s", name, err, msg)
			}
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}
