package transcribe

import (
	"context"
	"time"
)

// contextWithTimeout bounds a subprocess call relative to the job context
// without ever extending past ctx's own deadline.
func contextWithTimeout(ctx context.Context, seconds int) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
}
