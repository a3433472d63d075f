package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/batchauction/internal/encoding"
	"github.com/betbot/batchauction/internal/orderbook"
	"github.com/betbot/batchauction/internal/solver"
)

const maxBatchBody = 32 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func batchFormat(r *http.Request) string {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "yaml"):
		return "yaml"
	default:
		return "json"
	}
}

func (s *Server) handleBatchSolve(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "solve rate limit exceeded")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBatchBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	batch, err := solver.ParseBatch(body, batchFormat(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid batch: %v", err))
		return
	}

	ctx := r.Context()
	existing, err := s.getSolution(ctx, batch.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("batch %s already solved", batch.ID))
		return
	}

	out, err := s.svc.Solve(ctx, batch)
	if err != nil {
		switch {
		case errors.Is(err, solver.ErrSolveTimeout):
			writeError(w, http.StatusGatewayTimeout, err.Error())
		case errors.Is(err, orderbook.ErrNoNumeraire), errors.Is(err, orderbook.ErrUnsolvable):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	data, err := encoding.EncodeSolution(out.Result.Solution)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	row := solutionRow{
		ID:         out.BatchID,
		Numeraire:  uint16(batch.Numeraire),
		Hash:       out.Hash.Hex(),
		Data:       data,
		Iterations: out.Result.Iterations,
		Trades:     len(out.Result.Trades),
		Pruned:     out.Result.Pruned(),
		CreatedAt:  time.Now().UTC(),
	}
	dbCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.insertSolution(dbCtx, row); err != nil {
		if errors.Is(err, errDuplicateBatch) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.decoded.Set(row.ID, out.Result.Solution)

	sellTokens := make(map[encoding.OrderID]encoding.TokenID, len(batch.Orders))
	for _, o := range batch.Orders {
		sellTokens[o.ID] = o.SellToken
	}
	log.WithField("batch", row.ID).Infof("solution stored: %s", row.Hash)
	writeJSON(w, http.StatusCreated, s.withResult(s.newSolutionView(&row, out.Result.Solution, sellTokens), out))
}

func (s *Server) loadRow(w http.ResponseWriter, r *http.Request) (*solutionRow, bool) {
	id := strings.TrimSpace(pathParam(r, "batchID"))
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	row, err := s.getSolution(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "batch not found")
		return nil, false
	}
	return row, true
}

func (s *Server) handleBatchGet(w http.ResponseWriter, r *http.Request) {
	row, ok := s.loadRow(w, r)
	if !ok {
		return
	}
	sol, ok := s.decoded.Get(row.ID)
	if !ok {
		var err error
		sol, err = encoding.DecodeSolution(row.Data)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("stored solution corrupt: %v", err))
			return
		}
		s.decoded.Set(row.ID, sol)
	}
	writeJSON(w, http.StatusOK, s.newSolutionView(row, sol, nil))
}

func (s *Server) handleBatchRaw(w http.ResponseWriter, r *http.Request) {
	row, ok := s.loadRow(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Solution-Hash", row.Hash)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(row.Data)
}

func (s *Server) handleBatchesList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	rows, err := s.listSolutions(ctx, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]summaryView, 0, len(rows))
	for _, row := range rows {
		out = append(out, newSummaryView(row))
	}
	writeJSON(w, http.StatusOK, out)
}
