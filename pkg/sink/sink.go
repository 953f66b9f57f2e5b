// Package sink persists decoded FTDC samples to disk and serves range
// queries back over them. It stores one block per (source, metric
// path, hour) key in BadgerDB, each block holding a delta/XOR-encoded,
// zstd-compressed column pair (timestamps, raw metric bit patterns).
package sink

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/vjranagit/ftdc/pkg/types"
)

// Sink is the storage contract FTDC samples are ingested into and
// queried back from.
type Sink interface {
	Ingest(ctx context.Context, req *types.IngestRequest) error
	Query(ctx context.Context, req *types.QueryRequest) (*types.QueryResult, error)
	Close() error
}

// Config configures a Sink.
type Config struct {
	Path             string
	RetentionDays    int
	CompressionLevel int
	MaxOpenFiles     int
	EnableWAL        bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Path:             "./ftdc-data",
		RetentionDays:    30,
		CompressionLevel: 3,
		MaxOpenFiles:     1000,
		EnableWAL:        true,
	}
}

type badgerSink struct {
	cfg        *Config
	db         *badger.DB
	index      *Index
	compressor *Compressor
	wal        *WAL
	mu         sync.RWMutex
}

// Open creates or opens a Sink rooted at cfg.Path, replaying any WAL
// left behind by an unclean shutdown.
func Open(cfg *Config) (Sink, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.Path, "badger"))
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("sink: open badger: %w", err)
	}

	compressor, err := NewCompressor(cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: create compressor: %w", err)
	}

	s := &badgerSink{
		cfg:        cfg,
		db:         db,
		index:      NewIndex(),
		compressor: compressor,
	}

	if cfg.EnableWAL {
		// Replay before creating this run's WAL file, so replay neither
		// picks up nor deletes the file the new WAL is about to write.
		if err := ReplayWAL(cfg.Path, func(req *types.IngestRequest) error {
			return s.writeDirect(req)
		}); err != nil {
			db.Close()
			return nil, fmt.Errorf("sink: replay WAL: %w", err)
		}

		wal, err := NewWAL(cfg.Path)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("sink: open WAL: %w", err)
		}
		s.wal = wal
	}

	return s, nil
}

// Ingest implements Sink.
func (s *badgerSink) Ingest(ctx context.Context, req *types.IngestRequest) error {
	if s.wal != nil {
		if err := s.wal.Append(req); err != nil {
			return fmt.Errorf("sink: WAL append: %w", err)
		}
	}
	return s.writeDirect(req)
}

// writeDirect writes req's blocks without touching the WAL; used both
// by Ingest (after the WAL append) and by WAL replay itself.
func (s *badgerSink) writeDirect(req *types.IngestRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, series := range req.Series {
		seriesID := s.index.AddSeries(req.SourceID, series.Path, series.Kind)

		blocks := groupPointsByHour(series.Points)
		for blockTime, points := range blocks {
			if err := s.writeBlock(req.SourceID, seriesID, blockTime, points); err != nil {
				return fmt.Errorf("sink: write block: %w", err)
			}
		}

		if len(series.Points) > 0 {
			min := series.Points[0].Timestamp.Unix()
			max := series.Points[len(series.Points)-1].Timestamp.Unix()
			s.index.UpdateTimeRange(seriesID, min, max)
		}
	}
	return nil
}

func groupPointsByHour(points []types.Point) map[int64][]types.Point {
	blocks := make(map[int64][]types.Point)
	for _, p := range points {
		blockTime := p.Timestamp.Truncate(time.Hour).Unix()
		blocks[blockTime] = append(blocks[blockTime], p)
	}
	return blocks
}

type blockPayload struct {
	Count            int
	CompressedTS     []byte
	CompressedValues []byte
}

func (s *badgerSink) writeBlock(sourceID string, seriesID uint64, blockTime int64, points []types.Point) error {
	timestamps := make([]int64, len(points))
	values := make([]uint64, len(points))
	for i, p := range points {
		timestamps[i] = p.Timestamp.Unix()
		values[i] = p.Value
	}

	compressedTS, err := s.compressor.CompressTimestamps(timestamps)
	if err != nil {
		return fmt.Errorf("compress timestamps: %w", err)
	}
	compressedVals, err := s.compressor.CompressValues(values)
	if err != nil {
		return fmt.Errorf("compress values: %w", err)
	}

	payloadBytes, err := json.Marshal(blockPayload{
		Count:            len(points),
		CompressedTS:     compressedTS,
		CompressedValues: compressedVals,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	key := blockKey(sourceID, seriesID, blockTime)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payloadBytes)
	})
}

// Query implements Sink.
func (s *badgerSink) Query(ctx context.Context, req *types.QueryRequest) (*types.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seriesIDs := s.index.FindSeries(req.SourceID, req.PathPrefix)
	result := &types.QueryResult{Series: make([]types.MetricSeries, 0, len(seriesIDs))}

	startBlock := req.StartTime.Truncate(time.Hour).Unix()
	endBlock := req.EndTime.Truncate(time.Hour).Unix()

	for _, seriesID := range seriesIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		meta, ok := s.index.GetSeries(seriesID)
		if !ok {
			continue
		}

		series := types.MetricSeries{Path: meta.Path, Kind: meta.Kind}
		for blockTime := startBlock; blockTime <= endBlock; blockTime += 3600 {
			points, err := s.readBlock(req.SourceID, seriesID, blockTime)
			if err != nil {
				continue // block doesn't exist for this hour
			}
			for _, p := range points {
				if !p.Timestamp.Before(req.StartTime) && p.Timestamp.Before(req.EndTime) {
					series.Points = append(series.Points, p)
				}
			}
		}

		if len(series.Points) > 0 {
			result.Series = append(result.Series, series)
		}
	}
	return result, nil
}

func (s *badgerSink) readBlock(sourceID string, seriesID uint64, blockTime int64) ([]types.Point, error) {
	key := blockKey(sourceID, seriesID, blockTime)

	var payloadBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			payloadBytes = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	var payload blockPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	timestamps, err := s.compressor.DecompressTimestamps(payload.CompressedTS, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("decompress timestamps: %w", err)
	}
	values, err := s.compressor.DecompressValues(payload.CompressedValues, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("decompress values: %w", err)
	}

	points := make([]types.Point, payload.Count)
	for i := 0; i < payload.Count; i++ {
		points[i] = types.Point{Timestamp: time.Unix(timestamps[i], 0).UTC(), Value: values[i]}
	}
	return points, nil
}

// Close implements Sink.
func (s *badgerSink) Close() error {
	var firstErr error
	if s.wal != nil {
		if err := s.wal.Close(); err != nil {
			firstErr = err
		}
	}
	s.compressor.Close()
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// blockKey derives the BadgerDB key for one (source, series, hour)
// block: "<sourceID>/" + big-endian seriesID + big-endian blockTime.
func blockKey(sourceID string, seriesID uint64, blockTime int64) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString(sourceID)
	buf.WriteByte('/')
	binary.Write(buf, binary.BigEndian, seriesID)
	buf.WriteByte('/')
	binary.Write(buf, binary.BigEndian, blockTime)
	return buf.Bytes()
}
