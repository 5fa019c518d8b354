// Package backup copies sessions between a store and a JSONL file, one
// session document per line.
package backup

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pawsitive/pawsync/internal/gateway"
)

// Options configures Restore.
type Options struct {
	DryRun bool // Parse and validate without writing
}

// Result contains statistics about a dump or restore.
type Result struct {
	Written int
	Skipped int      // already present in the store
	Errors  []string // per-session failures; the rest still ran
}

// Dump writes every stored session to w as JSONL, in listing order.
func Dump(ctx context.Context, gw gateway.Gateway, w io.Writer) (*Result, error) {
	metas, err := gw.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	result := &Result{}
	enc := json.NewEncoder(w)
	for _, m := range metas {
		s, err := gw.Get(ctx, m.ID)
		if err != nil {
			if gateway.IsNotFound(err) {
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("failed to read %s: %v", m.ID, err))
			continue
		}
		doc, err := gateway.EncodeSession(s)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to encode %s: %v", m.ID, err))
			continue
		}
		if err := enc.Encode(doc); err != nil {
			return result, fmt.Errorf("failed to write %s: %w", m.ID, err)
		}
		result.Written++
	}
	return result, nil
}

// DumpFile writes the dump to path atomically via a temp file.
func DumpFile(ctx context.Context, gw gateway.Gateway, path string) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	bw := bufio.NewWriter(f)
	result, err := Dump(ctx, gw, bw)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return result, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return result, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return result, nil
}

// Restore creates every session read from r. Sessions whose id is already
// taken are skipped, never overwritten.
func Restore(ctx context.Context, gw gateway.Gateway, r io.Reader, opts Options) (*Result, error) {
	result := &Result{}
	dec := json.NewDecoder(r)
	for line := 1; ; line++ {
		var doc gateway.Document
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return result, fmt.Errorf("invalid JSON at record %d: %w", line, err)
		}
		s, err := gateway.DecodeSession(doc)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", line, err))
			continue
		}
		if err := s.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d (%s): %v", line, s.ID, err))
			continue
		}
		if opts.DryRun {
			exists, err := gw.Exists(ctx, s.ID)
			if err != nil {
				return result, err
			}
			if exists {
				result.Skipped++
			} else {
				result.Written++
			}
			continue
		}
		if err := gw.Create(ctx, s); err != nil {
			if errors.Is(err, gateway.ErrAlreadyExists) {
				result.Skipped++
				continue
			}
			if gateway.IsFatal(err) {
				return result, err
			}
			result.Errors = append(result.Errors, fmt.Sprintf("failed to restore %s: %v", s.ID, err))
			continue
		}
		result.Written++
	}
	return result, nil
}

// RestoreFile restores from the JSONL file at path.
func RestoreFile(ctx context.Context, gw gateway.Gateway, path string, opts Options) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()
	return Restore(ctx, gw, bufio.NewReader(f), opts)
}
