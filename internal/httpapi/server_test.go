package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/idhash"
	"call-ath-tracker/internal/orchestrator"
	"call-ath-tracker/internal/storage/memory"
)

const (
	testToken = "secret"
	testPool  = "0x1111111111111111111111111111111111111111"
)

type fakeRunner struct {
	calls []orchestrator.Tick
	last  orchestrator.Request
	err   error
}

func (f *fakeRunner) run(tick orchestrator.Tick, req orchestrator.Request) (*orchestrator.RunResult, error) {
	f.calls = append(f.calls, tick)
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.RunResult{RunID: "run-1", Tick: tick, Processed: 3, Updated: 1, Errors: []orchestrator.AssetError{}}, nil
}

func (f *fakeRunner) RunScan(_ context.Context, req orchestrator.Request) (*orchestrator.RunResult, error) {
	return f.run(orchestrator.TickScan, req)
}

func (f *fakeRunner) RunAudit(_ context.Context, req orchestrator.Request) (*orchestrator.RunResult, error) {
	return f.run(orchestrator.TickAudit, req)
}

func (f *fakeRunner) RunLiquidity(_ context.Context, req orchestrator.Request) (*orchestrator.RunResult, error) {
	return f.run(orchestrator.TickLiquidity, req)
}

type fixture struct {
	server *Server
	runner *fakeRunner
	assets *memory.AssetStore
	audits *memory.AuditLogStore
}

func newFixture(token string) *fixture {
	f := &fixture{
		runner: &fakeRunner{},
		assets: memory.NewAssetStore(),
		audits: memory.NewAuditLogStore(),
	}
	f.server = New(Options{
		Runner:    f.runner,
		Assets:    f.assets,
		Audits:    f.audits,
		AuthToken: token,
		Now:       func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	})
	return f
}

func (f *fixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(testToken)

	rec := f.do(http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestTick_Auth(t *testing.T) {
	tests := []struct {
		name        string
		serverToken string
		token       string
		want        int
	}{
		{"server token missing", "", "anything", http.StatusInternalServerError},
		{"no credentials", testToken, "", http.StatusUnauthorized},
		{"wrong credentials", testToken, "nope", http.StatusUnauthorized},
		{"valid", testToken, testToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.serverToken)
			rec := f.do(http.MethodPost, "/v1/ticks/scan", "", tt.token)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want != http.StatusOK {
				assert.Empty(t, f.runner.calls)
			}
		})
	}
}

func TestTick_Dispatch(t *testing.T) {
	f := newFixture(testToken)

	for _, tick := range []orchestrator.Tick{orchestrator.TickScan, orchestrator.TickAudit, orchestrator.TickLiquidity} {
		rec := f.do(http.MethodPost, "/v1/ticks/"+string(tick), `{"limit":10,"batchSize":5}`, testToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got orchestrator.RunResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, tick, got.Tick)
		assert.Equal(t, 3, got.Processed)
	}
	assert.Equal(t, []orchestrator.Tick{orchestrator.TickScan, orchestrator.TickAudit, orchestrator.TickLiquidity}, f.runner.calls)
	assert.Equal(t, orchestrator.Request{Limit: 10, BatchSize: 5}, f.runner.last)
}

func TestTick_BadRequests(t *testing.T) {
	f := newFixture(testToken)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/v1/ticks/scan", `{"limit":`, testToken).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/v1/ticks/scan", `{"limit":-1}`, testToken).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/v1/ticks/scan", `{"bogus":1}`, testToken).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/v1/ticks/backfill", "", testToken).Code)
	assert.Empty(t, f.runner.calls)
}

func TestTick_RunnerError(t *testing.T) {
	f := newFixture(testToken)
	f.runner.err = errors.New("store unavailable")

	rec := f.do(http.MethodPost, "/v1/ticks/audit", "", testToken)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "store unavailable")
}

func TestCreateAsset(t *testing.T) {
	f := newFixture(testToken)
	body := `{"network":"Ethereum","poolRef":"` + testPool + `","symbol":"PEPE","entryPrice":0.5,"entryTimestamp":1699990000000}`

	rec := f.do(http.MethodPost, "/v1/assets", body, testToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got assetView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	wantID := idhash.ComputeAssetID("ethereum", testPool, 1699990000000)
	assert.Equal(t, wantID, got.ID)
	assert.Equal(t, "ethereum", got.Network)
	assert.Equal(t, "alive", got.LifecycleState)
	assert.Nil(t, got.AthPrice)
	assert.Equal(t, int64(1_700_000_000_000), got.CreatedAt)

	stored, err := f.assets.GetByID(context.Background(), wantID)
	require.NoError(t, err)
	assert.Equal(t, 0.5, stored.EntryPrice)

	dup := f.do(http.MethodPost, "/v1/assets", body, testToken)
	assert.Equal(t, http.StatusConflict, dup.Code)
}

func TestCreateAsset_Validation(t *testing.T) {
	f := newFixture(testToken)

	tests := []struct {
		name string
		body string
	}{
		{"unknown network", `{"network":"tron","poolRef":"` + testPool + `","entryPrice":1,"entryTimestamp":1}`},
		{"bad pool", `{"network":"ethereum","poolRef":"0xzz","entryPrice":1,"entryTimestamp":1}`},
		{"zero price", `{"network":"ethereum","poolRef":"` + testPool + `","entryPrice":0,"entryTimestamp":1}`},
		{"missing timestamp", `{"network":"ethereum","poolRef":"` + testPool + `","entryPrice":1}`},
		{"negative liquidity", `{"network":"ethereum","poolRef":"` + testPool + `","entryPrice":1,"entryTimestamp":1,"liquidityUsd":-5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/v1/assets", tt.body, testToken)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateAsset_RequiresAuth(t *testing.T) {
	f := newFixture(testToken)

	rec := f.do(http.MethodPost, "/v1/assets", `{}`, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetAsset(t *testing.T) {
	f := newFixture(testToken)
	ath := 2.0
	athTs := int64(1_699_999_000_000)
	require.NoError(t, f.assets.Insert(context.Background(), &domain.Asset{
		ID:             "a1",
		Network:        "ethereum",
		PoolRef:        testPool,
		EntryPrice:     1,
		EntryTimestamp: 1,
		AthPrice:       &ath,
		AthTimestamp:   &athTs,
		AthTier:        domain.TierMinute,
	}))

	rec := f.do(http.MethodGet, "/v1/assets/a1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got assetView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.AthPrice)
	assert.Equal(t, 2.0, *got.AthPrice)
	assert.Equal(t, string(domain.TierMinute), got.AthTier)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/assets/missing", "", "").Code)
}

func TestGetAudits(t *testing.T) {
	f := newFixture(testToken)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.audits.Append(context.Background(), &domain.AuditRecord{
			AuditID:       idhash.ComputeAuditID("a1", int64(1000+i), nil, float64(i+1)),
			AssetID:       "a1",
			AuditedAt:     int64(1000 + i),
			Status:        domain.AuditCorrected,
			Type:          domain.DiscrepancyNoAth,
			ComputedPrice: float64(i + 1),
			RelativeDiff:  1,
		}))
	}

	rec := f.do(http.MethodGet, "/v1/assets/a1/audits?limit=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []auditView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/v1/assets/a1/audits?limit=0", "", "").Code)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(testToken)

	rec := f.do(http.MethodGet, "/nope", "", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}
