package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/idhash"
	"call-ath-tracker/internal/orchestrator"
	"call-ath-tracker/internal/storage"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Limit < 0 || req.BatchSize < 0 {
		writeError(w, http.StatusBadRequest, "limit and batchSize must not be negative")
		return
	}

	var (
		result *orchestrator.RunResult
		err    error
	)
	switch orchestrator.Tick(mux.Vars(r)["tick"]) {
	case orchestrator.TickScan:
		result, err = s.runner.RunScan(r.Context(), req)
	case orchestrator.TickAudit:
		result, err = s.runner.RunAudit(r.Context(), req)
	case orchestrator.TickLiquidity:
		result, err = s.runner.RunLiquidity(r.Context(), req)
	}
	if err != nil {
		s.logger.Error("tick failed", zap.String("tick", mux.Vars(r)["tick"]), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// createAssetRequest is the ingestion payload. ID is derived from
// (network, poolRef, entryTimestamp) when omitted.
type createAssetRequest struct {
	ID             string  `json:"id"`
	Network        string  `json:"network"`
	PoolRef        string  `json:"poolRef"`
	Symbol         string  `json:"symbol"`
	EntryPrice     float64 `json:"entryPrice"`
	EntryTimestamp int64   `json:"entryTimestamp"` // ms
	LiquidityUsd   float64 `json:"liquidityUsd"`
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	asset, err := s.newAsset(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.assets.Insert(r.Context(), asset); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
			writeError(w, http.StatusConflict, "asset already exists")
		case errors.Is(err, storage.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("insert asset failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "insert asset failed")
		}
		return
	}

	s.logger.Info("asset created",
		zap.String("asset_id", asset.ID),
		zap.String("network", asset.Network),
		zap.String("pool", asset.PoolRef))
	writeJSON(w, http.StatusCreated, toAssetView(asset))
}

func (s *Server) newAsset(req createAssetRequest) (*domain.Asset, error) {
	nw, ok := s.networks.Lookup(req.Network)
	if !ok {
		return nil, fmt.Errorf("unsupported network %q", req.Network)
	}
	if err := nw.ValidatePoolRef(req.PoolRef); err != nil {
		return nil, err
	}
	if req.EntryPrice <= 0 {
		return nil, errors.New("entryPrice must be positive")
	}
	if req.EntryTimestamp <= 0 {
		return nil, errors.New("entryTimestamp is required")
	}
	if req.LiquidityUsd < 0 {
		return nil, errors.New("liquidityUsd must not be negative")
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = idhash.ComputeAssetID(nw.ID, req.PoolRef, req.EntryTimestamp)
	}
	now := s.now().UnixMilli()
	return &domain.Asset{
		ID:             id,
		Network:        nw.ID,
		PoolRef:        req.PoolRef,
		Symbol:         req.Symbol,
		EntryPrice:     req.EntryPrice,
		EntryTimestamp: req.EntryTimestamp,
		LiquidityUsd:   req.LiquidityUsd,
		LifecycleState: domain.LifecycleAlive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := s.assets.GetByID(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	if err != nil {
		s.logger.Error("get asset failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get asset failed")
		return
	}
	writeJSON(w, http.StatusOK, toAssetView(asset))
}

func (s *Server) handleGetAudits(w http.ResponseWriter, r *http.Request) {
	if s.audits == nil {
		writeError(w, http.StatusNotFound, "audit history not enabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	records, err := s.audits.GetByAsset(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		s.logger.Error("get audits failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get audits failed")
		return
	}
	out := make([]auditView, len(records))
	for i, rec := range records {
		out[i] = toAuditView(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

// decodeOptional decodes a JSON body into v. An empty body leaves v as is.
func decodeOptional(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
