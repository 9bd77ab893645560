package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/meikuraledutech/bpm"
	"github.com/meikuraledutech/bpm/memory"
)

type env struct {
	app   *fiber.App
	store *memory.Store
	reg   *prometheus.Registry
	pid   int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.New()
	reg := prometheus.NewRegistry()
	e := &env{app: New(store, Options{Registry: reg}), store: store, reg: reg}

	var p bpm.Process
	e.call(t, http.MethodPost, "/tenants/1/processes", bpm.Process{Name: "Hiring"}, http.StatusCreated, &p)
	e.pid = p.ID
	return e
}

func (e *env) do(t *testing.T, method, path string, body any, header ...string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	return resp
}

func (e *env) call(t *testing.T, method, path string, body any, status int, out any) {
	t.Helper()
	resp := e.do(t, method, path, body)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, status, resp.StatusCode, string(raw))
	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out))
	}
}

func (e *env) path(format string, args ...any) string {
	return fmt.Sprintf("/processes/%d", e.pid) + fmt.Sprintf(format, args...)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func TestActivityRoutes(t *testing.T) {
	e := newEnv(t)

	var a bpm.Activity
	e.call(t, http.MethodPost, e.path("/activities"), bpm.Activity{Name: "Screen CV", Kind: bpm.ActivityHumanTask}, http.StatusCreated, &a)
	require.True(t, a.Active)
	require.Nil(t, a.X)

	a.Name = "Screen resume"
	a.SetPosition(bpm.Position{X: 300, Y: 120})
	var upd bpm.Activity
	e.call(t, http.MethodPut, e.path("/activities/%d", a.ID), a, http.StatusOK, &upd)
	require.Equal(t, "Screen resume", upd.Name)
	require.Equal(t, 300.0, *upd.X)

	var got bpm.Activity
	e.call(t, http.MethodGet, e.path("/activities/%d", a.ID), nil, http.StatusOK, &got)
	require.Equal(t, upd, got)

	e.call(t, http.MethodDelete, e.path("/activities/%d", a.ID), nil, http.StatusNoContent, nil)
	e.call(t, http.MethodDelete, e.path("/activities/%d", a.ID), nil, http.StatusNoContent, nil)

	var all, active []bpm.Activity
	e.call(t, http.MethodGet, e.path("/activities"), nil, http.StatusOK, &all)
	e.call(t, http.MethodGet, e.path("/activities/active"), nil, http.StatusOK, &active)
	require.Len(t, all, 1)
	require.Empty(t, active)

	var re bpm.Activity
	e.call(t, http.MethodPatch, e.path("/activities/%d/reactivate", a.ID), nil, http.StatusOK, &re)
	require.True(t, re.Active)

	e.call(t, http.MethodDelete, e.path("/activities/%d/permanent", a.ID), nil, http.StatusNoContent, nil)
	var nf errorBody
	e.call(t, http.MethodGet, e.path("/activities/%d", a.ID), nil, http.StatusNotFound, &nf)
	require.Equal(t, "ACTIVITY_NOT_FOUND", nf.Code)
	require.Equal(t, "The activity no longer exists.", nf.Error)
}

func TestNodeInUseIsConflict(t *testing.T) {
	e := newEnv(t)

	var g bpm.Gateway
	e.call(t, http.MethodPost, e.path("/gateways"), bpm.Gateway{Name: "Fit?", Kind: bpm.GatewayExclusive}, http.StatusCreated, &g)
	var arc bpm.Arc
	e.call(t, http.MethodPost, e.path("/arcs"), bpm.NewArc(e.pid, bpm.StartEvent, g.Endpoint()), http.StatusCreated, &arc)

	var body errorBody
	e.call(t, http.MethodDelete, e.path("/gateways/%d", g.ID), nil, http.StatusConflict, &body)
	require.Equal(t, "NODE_IN_USE", body.Code)
	require.Equal(t, fmt.Sprintf("gateway %d cannot be removed while 1 arc(s) still connect it", g.ID), body.Error)
}

func TestValidationIsUnprocessable(t *testing.T) {
	e := newEnv(t)

	var a bpm.Activity
	e.call(t, http.MethodPost, e.path("/activities"), bpm.Activity{Name: "Call", Kind: bpm.ActivityManual}, http.StatusCreated, &a)

	for name, tc := range map[string]struct {
		arc  bpm.Arc
		code string
	}{
		"self loop":        {bpm.NewArc(e.pid, a.Endpoint(), a.Endpoint()), "SELF_LOOP"},
		"unknown endpoint": {bpm.NewArc(e.pid, a.Endpoint(), bpm.Endpoint{Kind: bpm.KindActivity, ID: 999}), "UNKNOWN_ENDPOINT"},
		"bad kind":         {bpm.NewArc(e.pid, a.Endpoint(), bpm.Endpoint{Kind: "TIMER", ID: 1}), "INVALID"},
		"into start event": {bpm.NewArc(e.pid, a.Endpoint(), bpm.StartEvent), "INVALID"},
		"out of end event": {bpm.NewArc(e.pid, bpm.EndEvent, a.Endpoint()), "INVALID"},
	} {
		t.Run(name, func(t *testing.T) {
			var body errorBody
			e.call(t, http.MethodPost, e.path("/arcs"), tc.arc, http.StatusUnprocessableEntity, &body)
			require.Equal(t, tc.code, body.Code)
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestUnknownRoleIsUnprocessable(t *testing.T) {
	e := newEnv(t)

	var foreign bpm.Role
	e.call(t, http.MethodPost, "/tenants/2/roles", bpm.Role{Name: "Recruiter", Active: true}, http.StatusCreated, &foreign)

	var body errorBody
	e.call(t, http.MethodPost, e.path("/activities"), bpm.Activity{Name: "Offer", Kind: bpm.ActivityManual, RoleID: &foreign.ID}, http.StatusUnprocessableEntity, &body)
	require.Equal(t, "INVALID", body.Code)
	require.Equal(t, fmt.Sprintf("role %d is not an active role of this tenant", foreign.ID), body.Error)
}

type faultyStore struct {
	*memory.Store
}

func (faultyStore) ListArcs(ctx context.Context, processID int64) ([]bpm.Arc, error) {
	return nil, fmt.Errorf("bpm: list arcs: %w", errors.New("FATAL: password authentication failed for user \"bpm\""))
}

func TestServerFaultHidesDetail(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	app := New(faultyStore{memory.New()}, Options{Logger: zap.New(core)})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/processes/1/arcs", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "internal error", body.Error)

	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].ContextMap()["error"], "password authentication failed")
}

func TestBadRequests(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/processes/abc/activities", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, e.path("/gateways"), strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProcessAndRoles(t *testing.T) {
	e := newEnv(t)

	var a bpm.Activity
	e.call(t, http.MethodPost, e.path("/activities"), bpm.Activity{Name: "Offer", Kind: bpm.ActivityManual}, http.StatusCreated, &a)

	var plain, detail bpm.Process
	e.call(t, http.MethodGet, fmt.Sprintf("/tenants/1/processes/%d", e.pid), nil, http.StatusOK, &plain)
	e.call(t, http.MethodGet, fmt.Sprintf("/tenants/1/processes/%d/detail", e.pid), nil, http.StatusOK, &detail)
	require.Empty(t, plain.Activities)
	require.Len(t, detail.Activities, 1)
	require.Equal(t, bpm.ProcessDraft, detail.State)

	e.call(t, http.MethodGet, fmt.Sprintf("/tenants/2/processes/%d", e.pid), nil, http.StatusNotFound, nil)

	var role bpm.Role
	e.call(t, http.MethodPost, "/tenants/1/roles", bpm.Role{Name: "Recruiter", Active: true}, http.StatusCreated, &role)
	require.Equal(t, int64(1), role.TenantID)

	var roles []bpm.Role
	e.call(t, http.MethodGet, "/tenants/1/roles", nil, http.StatusOK, &roles)
	require.Equal(t, []bpm.Role{role}, roles)
}

func TestRequestIDAndMetrics(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, e.path("/arcs"), nil, HeaderRequestID, "req-42")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "req-42", resp.Header.Get(HeaderRequestID))

	resp = e.do(t, http.MethodGet, e.path("/arcs"), nil)
	require.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	resp = e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), `bpm_http_requests_total{method="GET",route="/processes/:pid/arcs",status="200"} 2`)
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusNotFound, statusFor(fmt.Errorf("x: %w", bpm.ErrArcNotFound)))
	require.Equal(t, http.StatusServiceUnavailable, statusFor(bpm.ErrUnavailable))
	require.Equal(t, http.StatusTeapot, statusFor(bpm.Rejected(http.StatusTeapot, bpm.ErrInvalid, "short and stout")))
	require.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
