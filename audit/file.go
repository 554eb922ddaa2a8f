package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oddbit-project/chargebridge/utils"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultFileMaxSizeMB  = 100
	DefaultFileMaxBackups = 7
	DefaultFileMaxAgeDays = 30
	DefaultBufferSize     = 64 * 1024
)

const (
	ErrMissingFilePath = utils.Error("file path is required")
)

// FileConfig rotated JSONL audit file settings
type FileConfig struct {
	FilePath             string `json:"filePath"`
	MaxSizeMB            int    `json:"maxSizeMB"`
	MaxBackups           int    `json:"maxBackups"`
	MaxAgeDays           int    `json:"maxAgeDays"`
	Compress             bool   `json:"compress"`
	BufferSize           int    `json:"bufferSize"`
	FlushIntervalSeconds int    `json:"flushIntervalSeconds"`
}

// NewFileConfig returns file sink defaults; FilePath must still be set
func NewFileConfig() *FileConfig {
	return &FileConfig{
		MaxSizeMB:            DefaultFileMaxSizeMB,
		MaxBackups:           DefaultFileMaxBackups,
		MaxAgeDays:           DefaultFileMaxAgeDays,
		Compress:             true,
		BufferSize:           DefaultBufferSize,
		FlushIntervalSeconds: DefaultFlushInterval,
	}
}

// Validate FileConfig
func (c *FileConfig) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if len(c.FilePath) == 0 {
		return ErrMissingFilePath
	}
	return nil
}

// FileSink appends events as JSON lines to a size-rotated file. Writes are
// buffered; a background loop flushes the buffer periodically and Close
// flushes whatever remains.
type FileSink struct {
	mu      sync.Mutex
	writer  *bufio.Writer
	encoder *json.Encoder
	rotator *lumberjack.Logger
	closed  atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFileSink creates a file sink from the configuration
func NewFileSink(cfg *FileConfig) (*FileSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = DefaultFileMaxSizeMB
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	writer := bufio.NewWriterSize(rotator, bufferSize)

	s := &FileSink{
		writer:  writer,
		encoder: json.NewEncoder(writer),
		rotator: rotator,
		done:    make(chan struct{}),
	}
	if cfg.FlushIntervalSeconds > 0 {
		s.wg.Add(1)
		go s.flushLoop(time.Duration(cfg.FlushIntervalSeconds) * time.Second)
	}
	return s, nil
}

// Record appends one event as a JSON line
func (s *FileSink) Record(_ context.Context, ev Event) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encoder.Encode(ev)
}

// Flush forces buffered events to disk
func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Flush()
}

// Close stops the flush loop, drains the buffer and closes the file
func (s *FileSink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrSinkClosed
	}
	close(s.done)
	s.wg.Wait()
	if err := s.Flush(); err != nil {
		return err
	}
	return s.rotator.Close()
}

func (s *FileSink) flushLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			_ = s.Flush()
		}
	}
}
