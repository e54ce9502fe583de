// internal/checksum/engine.go
package checksum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"seqpack/internal/runutil"
)

// DefaultMaxSidecarBytes bounds a sane sidecar: one digest line.
const DefaultMaxSidecarBytes = 4096

// Engine runs the hash → write → verify fan-outs over a directory tree.
type Engine struct {
	Workers         int   // <=0 means all CPUs
	MaxSidecarBytes int64 // <=0 means DefaultMaxSidecarBytes
	Log             *slog.Logger
	Alert           *slog.Logger
}

// Summary reports one engine run.
type Summary struct {
	Digests  []Digest
	Written  int
	Skipped  int
	Oversize []string
}

type writeResult struct {
	written, skipped int
	sidecars         []string
}

// Run checksums every deliverable under root.
func (e *Engine) Run(ctx context.Context, root string) (Summary, error) {
	files, err := Discover(root)
	if err != nil {
		return Summary{}, err
	}
	workers := runutil.Workers(e.Workers)
	e.Log.Info("checksum start", "root", root, "files", len(files), "workers", workers)

	digests, err := fanOut(ctx, workers, files, HashFile)
	if err != nil {
		return Summary{}, err
	}
	writes, err := fanOut(ctx, workers, digests, writeSidecars)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Digests: digests}
	var sidecars []string
	for _, w := range writes {
		sum.Written += w.written
		sum.Skipped += w.skipped
		sidecars = append(sidecars, w.sidecars...)
	}

	limit := e.MaxSidecarBytes
	if limit <= 0 {
		limit = DefaultMaxSidecarBytes
	}
	over, err := fanOut(ctx, workers, sidecars, func(p string) (bool, error) {
		return oversize(p, limit)
	})
	if err != nil {
		return Summary{}, err
	}
	for i, bad := range over {
		if !bad {
			continue
		}
		sum.Oversize = append(sum.Oversize, sidecars[i])
		for _, l := range []*slog.Logger{e.Log, e.Alert} {
			l.Error("sidecar oversize", "critical", true, "sidecar", sidecars[i], "limit_bytes", limit)
		}
	}
	e.Log.Info("checksum done", "root", root, "files", len(digests),
		"written", sum.Written, "skipped", sum.Skipped, "oversize", len(sum.Oversize))
	return sum, nil
}

// writeSidecars writes the .md5 and .sha512 sidecars of d, leaving any
// existing sidecar untouched.
func writeSidecars(d Digest) (writeResult, error) {
	var r writeResult
	base := filepath.Base(d.Path)
	for _, sc := range []struct{ ext, hex string }{{ExtMD5, d.MD5}, {ExtSHA512, d.SHA512}} {
		path := d.Path + sc.ext
		r.sidecars = append(r.sidecars, path)
		ok, err := writeOnce(path, FormatSidecar(sc.hex, base))
		if err != nil {
			return r, err
		}
		if ok {
			r.written++
		} else {
			r.skipped++
		}
	}
	return r, nil
}

func writeOnce(path, content string) (bool, error) {
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o664)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := fh.WriteString(content); err != nil {
		fh.Close()
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, fh.Close()
}

func oversize(path string, limit int64) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return fi.Size() > limit, nil
}

// fanOut applies fn to every item with at most workers in flight and
// returns results in input order. It blocks until all calls finish.
func fanOut[T, R any](ctx context.Context, workers int, in []T, fn func(T) (R, error)) ([]R, error) {
	out := make([]R, len(in))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range in {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(item)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
