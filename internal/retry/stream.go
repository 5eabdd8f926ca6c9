package retry

import (
	"context"

	"github.com/oremus-labs/kronos-go/internal/logutil"
	"github.com/oremus-labs/kronos-go/kronos/kerrors"
	"github.com/oremus-labs/kronos-go/kronos/stream"
)

// Stream opens a record stream through c and returns a stream that stays
// fed across attempts. Failures before the first stream is handed over are
// retried like Run and returned directly. After that, a retryable failure
// of the current attempt's stream counts against the same ceiling and open
// is called again with the same context.
//
// Records of a failed attempt that were already forwarded are not
// withdrawn, so the returned stream delivers at least once: records before
// the failure point may be delivered again by the next attempt. The
// returned stream completes when an attempt completes, and fails with the
// last error once the ceiling is reached or a failure is not retryable.
func Stream(ctx context.Context, c *Controller, open func(context.Context) (*stream.Stream, error)) (*stream.Stream, error) {
	if c.State() != StateAttempting {
		return nil, kerrors.Misuse("retry controller for %s reused after it settled", c.op)
	}
	first, err := attempt(ctx, c, open)
	if err != nil {
		return nil, err
	}
	out := stream.New()
	go c.forward(ctx, first, out, open)
	return out, nil
}

func (c *Controller) forward(ctx context.Context, in, out *stream.Stream, open func(context.Context) (*stream.Stream, error)) {
	for {
		if err := in.Each(out.Push); err != nil {
			c.settle(StateAborted, err)
			out.Fail(err)
			return
		}
		<-in.Done()
		err := in.Err()
		if err == nil {
			c.settle(StateSucceeded, nil)
			out.Complete()
			return
		}
		if rerr := c.retryAfter(ctx, err); rerr != nil {
			out.Fail(rerr)
			return
		}
		logutil.Debug("re-issuing kronos stream request", map[string]interface{}{
			"op":      c.op,
			"attempt": c.Attempts() + 1,
		})
		next, err := attempt(ctx, c, open)
		if err != nil {
			out.Fail(err)
			return
		}
		in = next
	}
}
