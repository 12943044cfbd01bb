package safe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/secmon-lab/utmcraft/pkg/utils/logging"
)

// Close closes closer and logs the failure instead of returning it. A nil
// closer and an already closed file are ignored.
func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		logging.From(ctx).Error("Failed to close",
			"error", err,
			"closer", fmt.Sprintf("%T", closer),
		)
	}
}

// Write writes data and logs a failure. Used for response bodies where the
// client may already be gone.
func Write(ctx context.Context, w io.Writer, data []byte) {
	if w == nil {
		return
	}
	if n, err := w.Write(data); err != nil {
		logging.From(ctx).Warn("Failed to write",
			"error", err,
			"written", n,
			"size", len(data),
		)
	}
}
