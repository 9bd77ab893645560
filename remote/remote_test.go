package remote

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/bpm"
	"github.com/meikuraledutech/bpm/httpapi"
	"github.com/meikuraledutech/bpm/memory"
	"github.com/meikuraledutech/bpm/storetest"
)

// serve runs app on a loopback port until the test ends.
func serve(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String()
}

func TestStore(t *testing.T) {
	url := serve(t, httpapi.New(memory.New(), httpapi.Options{}))
	storetest.Run(t, func(t *testing.T) bpm.Store {
		return New(url, Options{Timeout: 5 * time.Second})
	})
}

func TestRejectionCarriesMessage(t *testing.T) {
	store := memory.New()
	c := New(serve(t, httpapi.New(store, httpapi.Options{})), Options{})
	ctx := context.Background()

	p, err := c.CreateProcess(ctx, &bpm.Process{TenantID: 3, Name: "Claims"})
	require.NoError(t, err)
	a, err := c.CreateActivity(ctx, p.ID, &bpm.Activity{Name: "Assess", Kind: bpm.ActivityHumanTask})
	require.NoError(t, err)
	_, err = c.CreateArc(ctx, p.ID, &bpm.Arc{SourceKind: bpm.KindActivity, SourceID: a.ID, TargetKind: bpm.KindEndEvent})
	require.NoError(t, err)

	err = c.DeleteActivity(ctx, p.ID, a.ID)
	var rej *bpm.RejectionError
	require.True(t, errors.As(err, &rej))
	require.Equal(t, http.StatusConflict, rej.Status)
	require.ErrorIs(t, err, bpm.ErrNodeInUse)
	require.Equal(t, bpm.NodeInUse(a.Endpoint(), 1).Error(), rej.Message)
}

func TestTransportFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := New("http://"+addr, Options{Timeout: time.Second})
	_, err = c.ListArcs(context.Background(), 1)
	require.ErrorIs(t, err, bpm.ErrUnavailable)
}

func TestServerFaultIsUnavailable(t *testing.T) {
	app := fiber.New()
	app.Get("/processes/:pid/arcs", func(c fiber.Ctx) error {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "database is down"})
	})
	c := New(serve(t, app), Options{})

	_, err := c.ListArcs(context.Background(), 1)
	require.ErrorIs(t, err, bpm.ErrUnavailable)
	require.Contains(t, err.Error(), "database is down")
}

func TestRequestIDForwarded(t *testing.T) {
	got := make(chan string, 1)
	app := fiber.New()
	app.Get("/processes/:pid/gateways/active", func(c fiber.Ctx) error {
		got <- c.Get(headerRequestID)
		return c.JSON([]bpm.Gateway{})
	})
	c := New(serve(t, app), Options{})

	ctx := bpm.WithRequestID(context.Background(), "op-7")
	gws, err := c.ListActiveGateways(ctx, 9)
	require.NoError(t, err)
	require.NotNil(t, gws)
	require.Equal(t, "op-7", <-got)
}

func TestRolesAreCached(t *testing.T) {
	store := memory.New()
	c := New(serve(t, httpapi.New(store, httpapi.Options{})), Options{RoleCacheTTL: time.Minute})
	ctx := context.Background()

	_, err := c.CreateRole(ctx, &bpm.Role{TenantID: 5, Name: "Adjuster", Active: true})
	require.NoError(t, err)
	roles, err := c.ListRoles(ctx, 5)
	require.NoError(t, err)
	require.Len(t, roles, 1)

	// Written behind the client's back: not visible until the entry expires
	// or the client itself creates a role.
	_, err = store.CreateRole(ctx, &bpm.Role{TenantID: 5, Name: "Auditor", Active: true})
	require.NoError(t, err)
	roles, err = c.ListRoles(ctx, 5)
	require.NoError(t, err)
	require.Len(t, roles, 1)

	_, err = c.CreateRole(ctx, &bpm.Role{TenantID: 5, Name: "Supervisor", Active: true})
	require.NoError(t, err)
	roles, err = c.ListRoles(ctx, 5)
	require.NoError(t, err)
	require.Len(t, roles, 3)
}
