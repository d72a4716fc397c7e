package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/invoicecalc/internal/config"
	"github.com/Simplici0/invoicecalc/internal/db"
	"github.com/Simplici0/invoicecalc/internal/live"
	"github.com/Simplici0/invoicecalc/internal/metrics"
	"github.com/Simplici0/invoicecalc/internal/migrations"
	"github.com/Simplici0/invoicecalc/internal/seed"
	"github.com/Simplici0/invoicecalc/internal/store"
	"github.com/Simplici0/invoicecalc/internal/workspace"
)

const tolerance = 1e-9

func newTestServer(t *testing.T) (*server, http.Handler) {
	t.Helper()

	database, err := db.Open(db.SessionDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, migrations.Up(database))

	n := 0
	ids := func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}

	st := store.New(database)
	_, err = seed.Run(context.Background(), st, []seed.Entry{
		{Name: "Poster", CostPrice: 100, MarkupPercentage: 20},
		{Name: "Frame", CostPrice: 200, MarkupPercentage: 30},
	}, ids)
	require.NoError(t, err)

	logger := zerolog.Nop()
	hub := live.NewHub(logger, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	m := metrics.New(prometheus.NewRegistry())
	srv := &server{
		ws:       workspace.New(st, workspace.Options{NewID: ids, Publisher: hub, Recorder: m, Logger: logger}),
		hub:      hub,
		metrics:  m,
		logger:   logger,
		currency: "₹",
		origins:  []string{"*"},
	}
	return srv, srv.routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeMutation(t *testing.T, rr *httptest.ResponseRecorder) mutationResponse {
	t.Helper()

	var resp mutationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestSnapshotEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(t, h, http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var snap workspace.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Len(t, snap.Items, 2)
	assert.InDelta(t, 380, snap.Totals.TotalSellingPrice, tolerance)
	assert.InDelta(t, 25, snap.Totals.AverageMarkup, tolerance)
	assert.Equal(t, 80.0, snap.Split.SplitPercentage)

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw))
	assert.Contains(t, raw["split"], "hasPositiveMarkup")
	assert.Contains(t, raw["split"], "markupRequired")
	assert.Contains(t, raw["totals"], "averageMarkup")
}

func TestAddItemAcceptsStringsAndNumbers(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(t, h, http.MethodPost, "/api/items", `{"name":"Mug","costPrice":" 50 ","markupPercentage":10}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	resp := decodeMutation(t, rr)
	assert.True(t, resp.Applied)
	require.Len(t, resp.Snapshot.Items, 3)
	assert.Equal(t, "id-3", resp.Snapshot.Items[2].ID)
	assert.InDelta(t, 55, resp.Snapshot.Items[2].SellingPrice, tolerance)
}

func TestAddItemWithEmptyNameIsIgnored(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(t, h, http.MethodPost, "/api/items", `{"name":"","costPrice":"50","markupPercentage":"10"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decodeMutation(t, rr)
	assert.False(t, resp.Applied)
	assert.Len(t, resp.Snapshot.Items, 2)
}

func TestAddItemMalformedBody(t *testing.T) {
	_, h := newTestServer(t)

	for _, body := range []string{`{"name":`, `{"name":true}`, `[1,2]`} {
		rr := do(t, h, http.MethodPost, "/api/items", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		assert.Contains(t, rr.Body.String(), `"invalid_body"`)
	}
}

func TestUpdateItemNonNumericCostKeepsPriorValues(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(t, h, http.MethodPatch, "/api/items/id-1", `{"costPrice":"abc"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decodeMutation(t, rr)
	assert.False(t, resp.Applied)
	assert.InDelta(t, 100, resp.Snapshot.Items[0].CostPrice, tolerance)
	assert.InDelta(t, 120, resp.Snapshot.Items[0].SellingPrice, tolerance)
}

func TestUpdateItemAppliesBatch(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(t, h, http.MethodPatch, "/api/items/id-1", `{"name":"Wide poster","markupPercentage":"50","costPrice":"x","colour":"red"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decodeMutation(t, rr)
	assert.True(t, resp.Applied)
	it := resp.Snapshot.Items[0]
	assert.Equal(t, "Wide poster", it.Name)
	assert.InDelta(t, 100, it.CostPrice, tolerance)
	assert.InDelta(t, 150, it.SellingPrice, tolerance)
}

func TestDeleteItem(t *testing.T) {
	_, h := newTestServer(t)

	resp := decodeMutation(t, do(t, h, http.MethodDelete, "/api/items/id-1", ""))
	assert.True(t, resp.Applied)
	require.Len(t, resp.Snapshot.Items, 1)
	assert.Equal(t, "id-2", resp.Snapshot.Items[0].ID)

	resp = decodeMutation(t, do(t, h, http.MethodDelete, "/api/items/id-1", ""))
	assert.False(t, resp.Applied)
	assert.Len(t, resp.Snapshot.Items, 1)
}

func TestUpdateSplitScenario(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(t, h, http.MethodPut, "/api/split", `{"creatorMarkup":"100","splitPercentage":80}`)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decodeMutation(t, rr)
	assert.True(t, resp.Applied)
	s := resp.Snapshot.Split
	assert.InDelta(t, 480, s.FinalPrice, tolerance)
	assert.InDelta(t, 80, s.CreatorShare, tolerance)
	assert.InDelta(t, 20, s.CounterpartyShare, tolerance)
	assert.InDelta(t, 100, s.CounterpartyTotal, tolerance)
	assert.True(t, s.HasPositiveMarkup)
}

func TestUpdateSplitClampsAndFlagsMissingMarkup(t *testing.T) {
	_, h := newTestServer(t)

	resp := decodeMutation(t, do(t, h, http.MethodPut, "/api/split", `{"splitPercentage":150}`))
	assert.Equal(t, 100.0, resp.Snapshot.Split.SplitPercentage)
	assert.True(t, resp.Snapshot.Split.MarkupRequired)

	resp = decodeMutation(t, do(t, h, http.MethodPut, "/api/split", `{"splitPercentageText":"-5","creatorMarkup":"oops"}`))
	assert.Equal(t, 0.0, resp.Snapshot.Split.SplitPercentage)
	assert.Zero(t, resp.Snapshot.Split.CreatorMarkup)
	assert.True(t, resp.Snapshot.Split.MarkupRequired)

	resp = decodeMutation(t, do(t, h, http.MethodPut, "/api/split", `{"creatorMarkup":25}`))
	assert.False(t, resp.Snapshot.Split.MarkupRequired)
	assert.InDelta(t, 25, resp.Snapshot.Split.CounterpartyShare, tolerance)
}

func TestInvoiceTextReturnsPlainText(t *testing.T) {
	_, h := newTestServer(t)
	do(t, h, http.MethodPut, "/api/split", `{"creatorMarkup":"100"}`)

	rr := do(t, h, http.MethodGet, "/invoice.txt", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/plain")

	body := rr.Body.String()
	for _, expected := range []string{
		"- Poster: cost ₹100, markup 20.0%, selling ₹120.00",
		"Total Selling Price: ₹380",
		"Average Markup: 25.0%",
		"Final price with markup: ₹480",
		"Creator (80%): ₹80",
		"Platform total: ₹100 (initial profit ₹80 + ₹20)",
	} {
		assert.Contains(t, body, expected)
	}
}

func TestMetricsEndpointCountsEdits(t *testing.T) {
	_, h := newTestServer(t)
	do(t, h, http.MethodPost, "/api/items", `{"name":"Mug","costPrice":"1","markupPercentage":"1"}`)
	do(t, h, http.MethodPost, "/api/items", `{"name":"","costPrice":"1","markupPercentage":"1"}`)

	rr := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `invoicecalc_edits_total{operation="add",outcome="applied"} 1`)
	assert.Contains(t, body, `invoicecalc_edits_total{operation="add",outcome="ignored"} 1`)
	assert.Contains(t, body, `invoicecalc_http_requests_total{method="POST",route="/api/items",status="201"} 1`)
}

func TestWebSocketReceivesSnapshots(t *testing.T) {
	_, h := newTestServer(t)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	read := func() workspace.Snapshot {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg struct {
			Type string             `json:"type"`
			Data workspace.Snapshot `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, workspace.SnapshotMessage, msg.Type)
		return msg.Data
	}

	first := read()
	assert.Len(t, first.Items, 2)

	resp, err := http.Post(ts.URL+"/api/items", "application/json", strings.NewReader(`{"name":"Mug","costPrice":"50","markupPercentage":"10"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	next := read()
	assert.Len(t, next.Items, 3)
	assert.InDelta(t, 435, next.Totals.TotalSellingPrice, tolerance)
}

func TestLogFormat(t *testing.T) {
	assert.Equal(t, "console", logFormat(config.Config{AppEnv: "development"}))
	assert.Equal(t, "json", logFormat(config.Config{AppEnv: "production"}))
	assert.Equal(t, "json", logFormat(config.Config{AppEnv: "local", LogFormat: "json"}))
	assert.Equal(t, "text", logFormat(config.Config{AppEnv: "production", LogFormat: "text"}))
}

func TestOriginChecker(t *testing.T) {
	assert.Nil(t, originChecker([]string{"*"}))

	check := originChecker([]string{"http://localhost:5173"})
	require.NotNil(t, check)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))
	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))
}
