// Package logging builds the component loggers used across pawsync.
package logging

import (
	"io"
	"log"
	"os"
	gosync "sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures where log output goes.
type Options struct {
	// File enables a rotating log file when set.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Quiet drops stderr output. Without File, logs are discarded.
	Quiet bool

	// Stderr replaces os.Stderr.
	Stderr io.Writer
}

// Factory hands out loggers that share one output.
type Factory struct {
	out  io.Writer
	file *lumberjack.Logger
	once gosync.Once
}

// NewFactory opens the outputs described by opts.
func NewFactory(opts Options) *Factory {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	f := &Factory{}
	var writers []io.Writer
	if !opts.Quiet {
		writers = append(writers, stderr)
	}
	if opts.File != "" {
		f.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		writers = append(writers, f.file)
	}
	switch len(writers) {
	case 0:
		f.out = io.Discard
	case 1:
		f.out = writers[0]
	default:
		f.out = io.MultiWriter(writers...)
	}
	return f
}

// New returns a logger with a bracketed component prefix, e.g. "[sync] ".
func (f *Factory) New(component string) *log.Logger {
	return log.New(f.out, "["+component+"] ", log.LstdFlags)
}

// Writer returns the shared output.
func (f *Factory) Writer() io.Writer {
	return f.out
}

// Close closes the log file, if any.
func (f *Factory) Close() error {
	var err error
	f.once.Do(func() {
		if f.file != nil {
			err = f.file.Close()
		}
	})
	return err
}
