package testutil

import (
	"io"
	"log/slog"
	"time"
)

// Epoch is the fixed start time used by tests and scenarios.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// DiscardLogger returns a logger that writes nowhere.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
