package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitError(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to open database", cause)

	assert.Equal(t, "failed to open database: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("run: %w", err)))
	assert.Equal(t, "bad flag", NewExitError(ExitFailure, "bad flag").Error())
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestOutputFormatter_JSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	assert.NoError(t, f.Success(drainView{Completed: 2, Remaining: 1}))
	assert.JSONEq(t, `{"status":"ok","data":{"completed":2,"remaining":1}}`, buf.String())

	buf.Reset()
	assert.NoError(t, f.Error("USER_NOT_FOUND", "user not found"))
	assert.JSONEq(t, `{"status":"error","error":{"code":"USER_NOT_FOUND","message":"user not found"}}`, buf.String())
}

func TestOutputFormatter_Text(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	assert.NoError(t, f.Success(drainView{Completed: 2, Remaining: 1}))
	assert.Equal(t, "2 sweep(s) completed, 1 queued\n", buf.String())

	buf.Reset()
	assert.NoError(t, f.Success("plain value"))
	assert.Equal(t, "plain value\n", buf.String())

	buf.Reset()
	assert.NoError(t, f.Error("LEDGER_ERROR", "boom"))
	assert.Equal(t, "Error [LEDGER_ERROR]: boom\n", buf.String())
}
