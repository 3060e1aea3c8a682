//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func TestRouter_Health(t *testing.T) {
	h := buildRouter(newTestEnv(t), []string{"*"})

	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	decode(t, rr, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := buildRouter(newTestEnv(t), []string{"https://claims.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/v1/evaluate", nil)
	req.Header.Set("Origin", "https://claims.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://claims.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_EvaluateAndFetch(t *testing.T) {
	h := buildRouter(newTestEnv(t), []string{"*"})

	rr := do(t, h, http.MethodPost, "/v1/evaluate", evaluateRequest{RawCase: clientCase(), Save: true})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var ev struct {
		ID       string `json:"id"`
		Decision struct {
			IsTotalLoss bool   `json:"is_total_loss"`
			Threshold   string `json:"threshold"`
		} `json:"decision"`
	}
	decode(t, rr, &ev)
	require.NotEmpty(t, ev.ID)
	assert.True(t, ev.Decision.IsTotalLoss)
	assert.Equal(t, "14000", ev.Decision.Threshold)

	rr = do(t, h, http.MethodGet, "/v1/decisions/"+ev.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got struct {
		Record struct {
			ID string `json:"id"`
		} `json:"record"`
		Responses []any `json:"salvage_responses"`
	}
	decode(t, rr, &got)
	assert.Equal(t, ev.ID, got.Record.ID)
	assert.NotNil(t, got.Responses)

	rr = do(t, h, http.MethodGet, "/v1/decisions?loss_type=client&limit=5", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []map[string]any
	decode(t, rr, &list)
	assert.Len(t, list, 1)

	rr = do(t, h, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var stats struct {
		Total       int `json:"total"`
		TotalLosses int `json:"total_losses"`
	}
	decode(t, rr, &stats)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.TotalLosses)
}

func TestRouter_EvaluateInvalid(t *testing.T) {
	h := buildRouter(newTestEnv(t), []string{"*"})

	bad := clientCase()
	bad.VIN = "123"
	rr := do(t, h, http.MethodPost, "/v1/evaluate", evaluateRequest{RawCase: bad})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var body struct {
		Error  string `json:"error"`
		Errors []struct {
			Field string `json:"field"`
		} `json:"errors"`
	}
	decode(t, rr, &body)
	assert.Equal(t, "validation failed with 1 error(s)", body.Error)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "vin", body.Errors[0].Field)
}

func TestRouter_EvaluateBadBody(t *testing.T) {
	h := buildRouter(newTestEnv(t), []string{"*"})

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_EvaluateBatch(t *testing.T) {
	h := buildRouter(newTestEnv(t), []string{"*"})

	bad := clientCase()
	bad.RepairQuote = "-5"
	rr := do(t, h, http.MethodPost, "/v1/evaluate/batch", map[string]any{
		"cases": []any{clientCase(), bad},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var sum batchSummary
	decode(t, rr, &sum)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.TotalLosses)
	assert.Equal(t, 1, sum.Invalid)
	assert.Equal(t, 2, sum.Lines[1].Line)

	rr = do(t, h, http.MethodPost, "/v1/evaluate/batch", map[string]any{"cases": []any{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_Extract(t *testing.T) {
	env := newTestEnv(t)
	h := buildRouter(env, []string{"*"})

	ev, err := evaluateRaw(context.Background(), env, clientCase(), true)
	require.NoError(t, err)

	rr := do(t, h, http.MethodPost, "/v1/extract", extractRequest{
		Text:       "Salvage Value: $4,200\nThanks",
		DecisionID: ev.ID,
		Sender:     "yard@salvage.com.au",
		Save:       true,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res struct {
		BestValue  string   `json:"best_value"`
		BestMethod string   `json:"best_method"`
		Warnings   []string `json:"warnings"`
	}
	decode(t, rr, &res)
	assert.Equal(t, "4200", res.BestValue)
	assert.Equal(t, "structured_format", res.BestMethod)
	assert.Empty(t, res.Warnings)

	responses, err := env.Store.ListSalvageResponses(context.Background(), ev.ID)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, "yard@salvage.com.au", responses[0].Sender)
}

func TestRouter_ExtractErrors(t *testing.T) {
	h := buildRouter(newTestEnv(t), []string{"*"})

	rr := do(t, h, http.MethodPost, "/v1/extract", extractRequest{Text: "  "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/v1/extract", extractRequest{Text: "offer: $500", Save: true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/v1/extract", extractRequest{Text: "offer: $500", DecisionID: "DEC-missing"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_ExtractSections(t *testing.T) {
	h := buildRouter(newTestEnv(t), []string{"*"})

	text := "From Yard A: our offer is $3,500 for the vehicle.\n\nFrom Yard B: we can do a salvage price of $3,900 firm."
	rr := do(t, h, http.MethodPost, "/v1/extract", extractRequest{Text: text, PolicyValue: "20000", Sections: true})
	require.Equal(t, http.StatusOK, rr.Code)

	var offers []struct {
		Section int `json:"section"`
	}
	decode(t, rr, &offers)
	assert.Len(t, offers, 2)
}

func TestRouter_DecisionNotFound(t *testing.T) {
	h := buildRouter(newTestEnv(t), []string{"*"})
	rr := do(t, h, http.MethodGet, "/v1/decisions/DEC-nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_BadFilter(t *testing.T) {
	h := buildRouter(newTestEnv(t), []string{"*"})

	for _, path := range []string{
		"/v1/decisions?loss_type=fleet",
		"/v1/decisions?limit=-1",
		"/v1/decisions?limit=ten",
		"/v1/stats?since=yesterday",
		"/v1/stats?total_loss=maybe",
	} {
		rr := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
	}
}

func TestRouter_EmptyList(t *testing.T) {
	h := buildRouter(newTestEnv(t), []string{"*"})
	rr := do(t, h, http.MethodGet, "/v1/decisions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}
