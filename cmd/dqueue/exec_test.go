package main

import (
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"testing"

	// Packages
	dqueue "github.com/mutablelogic/go-dqueue"
	assert "github.com/stretchr/testify/assert"
)

func Test_Exec_001(t *testing.T) {
	assert := assert.New(t)
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no shell")
	}
	entry := &dqueue.Entry{Id: 42, Type: "move", Payload: json.RawMessage(`{"to":"b"}`)}

	t.Run("Environment", func(t *testing.T) {
		fn := execHandler("sh", "-c", `test "$DQUEUE_ID" = 42 && test "$DQUEUE_TYPE" = move`)
		assert.NoError(fn(context.TODO(), entry))
	})

	t.Run("Stdin", func(t *testing.T) {
		fn := execHandler("sh", "-c", `test "$(cat)" = '{"to":"b"}'`)
		assert.NoError(fn(context.TODO(), entry))
	})

	t.Run("Failure", func(t *testing.T) {
		fn := execHandler("sh", "-c", `echo "no space" >&2; exit 3`)
		err := fn(context.TODO(), entry)
		var exitErr *exec.ExitError
		if assert.ErrorAs(err, &exitErr) {
			assert.Equal(3, exitErr.ExitCode())
		}
		assert.ErrorContains(err, "no space")
	})
}

func Test_Backends_001(t *testing.T) {
	assert := assert.New(t)

	for _, name := range []string{"postgres", "sqlite", "mysql"} {
		t.Run(name, func(t *testing.T) {
			fn, exists := backends[name]
			if assert.True(exists) {
				backend, err := fn(&Globals{Backend: name, Path: t.TempDir() + "/queue.db", Table: "queue"})
				assert.NoError(err)
				assert.NotNil(backend)
			}
		})
	}

	t.Run("ExitCode", func(t *testing.T) {
		assert.Equal(int(dqueue.ErrConstraint), exitCode(dqueue.ErrConstraint.With("x")))
		assert.Equal(1, exitCode(errors.New("exec failed")))
	})
}
