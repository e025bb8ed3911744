// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package eventlogger

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/Max-Rodriguez/otp/lib/clock"
)

// Log file layout: each record is [length u32 BE][record bytes],
// appended to events-<unixnano>.log in the output directory. When the
// file passes the rotation threshold it is closed, compressed per
// policy, and a fresh file is opened. The active file is never
// compressed, so a crash loses at most the records the OS had not
// flushed.

// logFile is the rotating record sink. Not safe for concurrent use;
// the service's single receive loop is the only writer.
type logFile struct {
	directory   string
	rotateBytes int64
	compression string
	clk         clock.Clock
	logger      *slog.Logger

	file *os.File
	size int64
}

func openLogFile(directory string, rotateBytes int64, compression string, clk clock.Clock, logger *slog.Logger) (*logFile, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}

	f := &logFile{
		directory:   directory,
		rotateBytes: rotateBytes,
		compression: compression,
		clk:         clk,
		logger:      logger,
	}
	if err := f.openFresh(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *logFile) openFresh() error {
	name := fmt.Sprintf("events-%d.log", f.clk.Now().UnixNano())
	path := filepath.Join(f.directory, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating event log file: %w", err)
	}
	f.file = file
	f.size = 0
	return nil
}

// Append writes one length-prefixed record and rotates afterwards if
// the file passed the threshold. A record is never split across files.
func (f *logFile) Append(record []byte) error {
	frame := make([]byte, 4+len(record))
	binary.BigEndian.PutUint32(frame, uint32(len(record)))
	copy(frame[4:], record)

	if _, err := f.file.Write(frame); err != nil {
		return fmt.Errorf("appending event record: %w", err)
	}
	f.size += int64(len(frame))

	if f.rotateBytes > 0 && f.size >= f.rotateBytes {
		return f.rotate()
	}
	return nil
}

// rotate closes the active file, compresses it, and opens a fresh one.
// A compression failure is logged but does not stop the logger; the
// uncompressed rotated file stays on disk.
func (f *logFile) rotate() error {
	path := f.file.Name()
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("closing rotated event log: %w", err)
	}

	if err := compressFile(path, f.compression); err != nil {
		f.logger.Warn("event log compression failed, keeping uncompressed file",
			"path", path,
			"compression", f.compression,
			"error", err,
		)
	} else if f.compression != "none" {
		f.logger.Info("rotated event log", "path", path, "compression", f.compression)
	}

	return f.openFresh()
}

func (f *logFile) Close() error {
	return f.file.Close()
}

// compressFile compresses path into path plus an algorithm suffix and
// removes the original. "none" leaves the file alone.
func compressFile(path, compression string) error {
	var suffix string
	switch compression {
	case "none":
		return nil
	case "zstd":
		suffix = ".zst"
	case "lz4":
		suffix = ".lz4"
	default:
		return fmt.Errorf("unknown compression %q", compression)
	}

	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening rotated log: %w", err)
	}
	defer in.Close()

	out, err := os.Create(path + suffix)
	if err != nil {
		return fmt.Errorf("creating compressed log: %w", err)
	}

	var compressor io.WriteCloser
	switch compression {
	case "zstd":
		zw, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			out.Close()
			return fmt.Errorf("zstd writer: %w", err)
		}
		compressor = zw
	case "lz4":
		compressor = lz4.NewWriter(out)
	}

	if _, err := io.Copy(compressor, in); err != nil {
		compressor.Close()
		out.Close()
		return fmt.Errorf("compressing rotated log: %w", err)
	}
	if err := compressor.Close(); err != nil {
		out.Close()
		return fmt.Errorf("finishing compressed log: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing compressed log: %w", err)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing uncompressed log: %w", err)
	}
	return nil
}
