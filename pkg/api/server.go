// Package api exposes an HTTP surface over a pkg/sink.Sink: range
// queries against ingested samples, plus a streaming decode endpoint
// that runs an uploaded FTDC file through pkg/ftdc without persisting
// it.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/vjranagit/ftdc/pkg/ftdc"
	"github.com/vjranagit/ftdc/pkg/sink"
	"github.com/vjranagit/ftdc/pkg/types"
)

// Server implements the HTTP API.
type Server struct {
	sink       sink.Sink
	addr       string
	log        zerolog.Logger
	decodeOpts ftdc.Options
	server     *http.Server
}

// NewServer creates a Server that answers queries from sink,
// decoding uploaded files per decodeOpts (see internal/config's
// DecodeConfig.ToOptions).
func NewServer(addr string, s sink.Sink, log zerolog.Logger, decodeOpts ftdc.Options) *Server {
	return &Server{sink: s, addr: addr, log: log, decodeOpts: decodeOpts}
}

// Start runs the HTTP server, blocking until it stops or errors.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/query", s.handleQuery)
	mux.HandleFunc("/api/v1/decode", s.handleDecode)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // decode streams can run long on large files
	}
	s.log.Info().Str("addr", s.addr).Msg("starting ftdc api server")
	return s.server.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleQuery serves GET /api/v1/query?source=...&prefix=...&start=...&end=...
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	sourceID := r.URL.Query().Get("source")
	if sourceID == "" {
		http.Error(w, "missing source parameter", http.StatusBadRequest)
		return
	}

	startTime, endTime, err := parseTimeRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := &types.QueryRequest{
		SourceID:   sourceID,
		PathPrefix: r.URL.Query().Get("prefix"),
		StartTime:  startTime,
		EndTime:    endTime,
	}

	result, err := s.sink.Query(r.Context(), req)
	if err != nil {
		s.log.Error().Err(err).Str("source", sourceID).Msg("query failed")
		http.Error(w, fmt.Sprintf("query failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleDecode serves POST /api/v1/decode: the request body is a raw
// FTDC file, the response is newline-delimited JSON, one Sample per
// line, streamed as chunks decode rather than buffered in full.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, canFlush := w.(http.Flusher)

	it := ftdc.NewSampleIterator(ftdc.NewChunkIterator(r.Context(), r.Body), s.decodeOpts)
	enc := json.NewEncoder(w)

	for it.Next() {
		if err := enc.Encode(it.Sample()); err != nil {
			s.log.Error().Err(err).Msg("decode stream write failed")
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
	if err := it.Err(); err != nil {
		s.log.Error().Err(err).Msg("decode failed mid-stream")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	start = time.Now().Add(-time.Hour)
	end = time.Now()

	if v := r.URL.Query().Get("start"); v != "" {
		if unix, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			start = time.Unix(unix, 0).UTC()
		} else if start, err = time.Parse(time.RFC3339, v); err != nil {
			return start, end, fmt.Errorf("invalid start time: %w", err)
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if unix, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			end = time.Unix(unix, 0).UTC()
		} else if end, err = time.Parse(time.RFC3339, v); err != nil {
			return start, end, fmt.Errorf("invalid end time: %w", err)
		}
	}
	return start, end, nil
}
