package flashops

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kanjar-tools/aldlflash/session"
)

// Row is a decoded 57-field sensor snapshot. Field semantics vary by
// calibration and are outside this tool's scope; Raw preserves the
// bytes for a caller-supplied decoder while Fields offers a
// best-effort per-byte view for callers that don't need anything
// fancier.
type Row struct {
	Raw    []byte
	Fields [session.DatalogFieldCount]byte
}

func decodeRow(raw []byte) Row {
	var row Row
	row.Raw = append([]byte(nil), raw...)
	copy(row.Fields[:], raw)
	return row
}

// DatalogStream issues mode 1 at the given cadence and hands each
// decoded row to sink until ctx is cancelled or sink returns an error,
// running the polling loop on a dedicated worker that owns the session
// for its lifetime. The returned function blocks until the worker
// stops and reports its error, giving the caller an explicit join
// point instead of a fire-and-forget goroutine.
func DatalogStream(ctx context.Context, s *session.Session, interval time.Duration, sink func(Row) error) (stop func() error) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				raw, err := s.DatalogFrame(gctx)
				if err != nil {
					return err
				}
				if err := sink(decodeRow(raw)); err != nil {
					return err
				}
			}
		}
	})
	return func() error {
		cancel()
		err := g.Wait()
		if err == context.Canceled {
			return nil
		}
		return err
	}
}
