package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vjranagit/ftdc/pkg/types"
)

// WAL is a write-ahead log: every IngestRequest is appended here before
// its blocks are written to BadgerDB, so an interrupted write can be
// recovered by replaying it.
type WAL struct {
	path       string
	file       *os.File
	writer     *bufio.Writer
	mu         sync.Mutex
	flushTimer *time.Timer
}

// walEntry is the on-disk JSON shape of one WAL record.
type walEntry struct {
	Timestamp time.Time            `json:"timestamp"`
	SourceID  string               `json:"source_id"`
	Series    []types.MetricSeries `json:"series"`
}

// NewWAL opens (creating if necessary) a WAL file under dataPath/wal.
func NewWAL(dataPath string) (*WAL, error) {
	walPath := filepath.Join(dataPath, "wal")
	if err := os.MkdirAll(walPath, 0755); err != nil {
		return nil, fmt.Errorf("sink: create WAL directory: %w", err)
	}

	filename := filepath.Join(walPath, fmt.Sprintf("wal-%d.log", time.Now().UnixNano()))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("sink: open WAL file: %w", err)
	}

	w := &WAL{path: walPath, file: file, writer: bufio.NewWriter(file)}
	w.flushTimer = time.AfterFunc(time.Second, w.autoFlush)
	return w, nil
}

// Append writes one ingest request to the log.
func (w *WAL) Append(req *types.IngestRequest) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry := walEntry{Timestamp: time.Now(), SourceID: req.SourceID, Series: req.Series}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("sink: marshal WAL entry: %w", err)
	}
	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("sink: write WAL entry: %w", err)
	}
	return w.writer.WriteByte('\n')
}

// Flush forces buffered WAL entries to stable storage.
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("sink: flush WAL: %w", err)
	}
	return w.file.Sync()
}

func (w *WAL) autoFlush() {
	w.Flush()
	w.mu.Lock()
	w.flushTimer.Reset(time.Second)
	w.mu.Unlock()
}

// Close stops the auto-flush timer and closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.flushTimer != nil {
		w.flushTimer.Stop()
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	return w.file.Close()
}

// ReplayWAL replays every WAL file under dataPath/wal, in directory
// listing order, invoking handler for each recovered request, then
// deletes the file it replayed.
func ReplayWAL(dataPath string, handler func(*types.IngestRequest) error) error {
	walPath := filepath.Join(dataPath, "wal")
	entries, err := os.ReadDir(walPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("sink: read WAL directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		filename := filepath.Join(walPath, entry.Name())
		if err := replayWALFile(filename, handler); err != nil {
			return fmt.Errorf("sink: replay %s: %w", filename, err)
		}
		os.Remove(filename)
	}
	return nil
}

func replayWALFile(filename string, handler func(*types.IngestRequest) error) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var entry walEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fmt.Errorf("sink: unmarshal WAL entry: %w", err)
		}
		req := &types.IngestRequest{SourceID: entry.SourceID, Series: entry.Series}
		if err := handler(req); err != nil {
			return fmt.Errorf("sink: replay entry: %w", err)
		}
	}
	return scanner.Err()
}
