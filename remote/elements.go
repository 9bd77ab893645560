package remote

import (
	"context"
	"net/http"
	"strconv"

	"github.com/meikuraledutech/bpm"
)

// resource issues the calls shared by the three element families.
type resource[T any] struct {
	c    *Client
	name string
}

func (r resource[T]) path(processID int64, id int64, suffix string) string {
	p := processPath(processID, "/"+r.name)
	if id != 0 {
		p += "/" + strconv.FormatInt(id, 10)
	}
	return p + suffix
}

func (r resource[T]) list(ctx context.Context, processID int64, activeOnly bool) ([]T, error) {
	suffix := ""
	if activeOnly {
		suffix = "/active"
	}
	var out []T
	if err := r.c.do(ctx, http.MethodGet, r.path(processID, 0, suffix), nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func (r resource[T]) one(ctx context.Context, method string, processID, id int64, suffix string, body *T) (*T, error) {
	var out T
	var in any
	if body != nil {
		in = body
	}
	if err := r.c.do(ctx, method, r.path(processID, id, suffix), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r resource[T]) get(ctx context.Context, processID, id int64) (*T, error) {
	return r.one(ctx, http.MethodGet, processID, id, "", nil)
}

func (r resource[T]) create(ctx context.Context, processID int64, v *T) (*T, error) {
	return r.one(ctx, http.MethodPost, processID, 0, "", v)
}

func (r resource[T]) update(ctx context.Context, processID, id int64, v *T) (*T, error) {
	return r.one(ctx, http.MethodPut, processID, id, "", v)
}

func (r resource[T]) reactivate(ctx context.Context, processID, id int64) (*T, error) {
	return r.one(ctx, http.MethodPatch, processID, id, "/reactivate", nil)
}

func (r resource[T]) delete(ctx context.Context, processID, id int64) error {
	return r.c.do(ctx, http.MethodDelete, r.path(processID, id, ""), nil, nil)
}

func (r resource[T]) purge(ctx context.Context, processID, id int64) error {
	return r.c.do(ctx, http.MethodDelete, r.path(processID, id, "/permanent"), nil, nil)
}

func (c *Client) activities() resource[bpm.Activity] { return resource[bpm.Activity]{c, "activities"} }
func (c *Client) gateways() resource[bpm.Gateway]    { return resource[bpm.Gateway]{c, "gateways"} }
func (c *Client) arcs() resource[bpm.Arc]            { return resource[bpm.Arc]{c, "arcs"} }

func (c *Client) ListActivities(ctx context.Context, processID int64) ([]bpm.Activity, error) {
	return c.activities().list(ctx, processID, false)
}

func (c *Client) ListActiveActivities(ctx context.Context, processID int64) ([]bpm.Activity, error) {
	return c.activities().list(ctx, processID, true)
}

func (c *Client) GetActivity(ctx context.Context, processID, id int64) (*bpm.Activity, error) {
	return c.activities().get(ctx, processID, id)
}

func (c *Client) CreateActivity(ctx context.Context, processID int64, a *bpm.Activity) (*bpm.Activity, error) {
	return c.activities().create(ctx, processID, a)
}

func (c *Client) UpdateActivity(ctx context.Context, processID int64, a *bpm.Activity) (*bpm.Activity, error) {
	return c.activities().update(ctx, processID, a.ID, a)
}

func (c *Client) DeleteActivity(ctx context.Context, processID, id int64) error {
	return c.activities().delete(ctx, processID, id)
}

func (c *Client) ReactivateActivity(ctx context.Context, processID, id int64) (*bpm.Activity, error) {
	return c.activities().reactivate(ctx, processID, id)
}

func (c *Client) PurgeActivity(ctx context.Context, processID, id int64) error {
	return c.activities().purge(ctx, processID, id)
}

func (c *Client) ListGateways(ctx context.Context, processID int64) ([]bpm.Gateway, error) {
	return c.gateways().list(ctx, processID, false)
}

func (c *Client) ListActiveGateways(ctx context.Context, processID int64) ([]bpm.Gateway, error) {
	return c.gateways().list(ctx, processID, true)
}

func (c *Client) GetGateway(ctx context.Context, processID, id int64) (*bpm.Gateway, error) {
	return c.gateways().get(ctx, processID, id)
}

func (c *Client) CreateGateway(ctx context.Context, processID int64, g *bpm.Gateway) (*bpm.Gateway, error) {
	return c.gateways().create(ctx, processID, g)
}

func (c *Client) UpdateGateway(ctx context.Context, processID int64, g *bpm.Gateway) (*bpm.Gateway, error) {
	return c.gateways().update(ctx, processID, g.ID, g)
}

func (c *Client) DeleteGateway(ctx context.Context, processID, id int64) error {
	return c.gateways().delete(ctx, processID, id)
}

func (c *Client) ReactivateGateway(ctx context.Context, processID, id int64) (*bpm.Gateway, error) {
	return c.gateways().reactivate(ctx, processID, id)
}

func (c *Client) PurgeGateway(ctx context.Context, processID, id int64) error {
	return c.gateways().purge(ctx, processID, id)
}

func (c *Client) ListArcs(ctx context.Context, processID int64) ([]bpm.Arc, error) {
	return c.arcs().list(ctx, processID, false)
}

func (c *Client) ListActiveArcs(ctx context.Context, processID int64) ([]bpm.Arc, error) {
	return c.arcs().list(ctx, processID, true)
}

func (c *Client) GetArc(ctx context.Context, processID, id int64) (*bpm.Arc, error) {
	return c.arcs().get(ctx, processID, id)
}

func (c *Client) CreateArc(ctx context.Context, processID int64, a *bpm.Arc) (*bpm.Arc, error) {
	return c.arcs().create(ctx, processID, a)
}

func (c *Client) UpdateArc(ctx context.Context, processID int64, a *bpm.Arc) (*bpm.Arc, error) {
	return c.arcs().update(ctx, processID, a.ID, a)
}

func (c *Client) DeleteArc(ctx context.Context, processID, id int64) error {
	return c.arcs().delete(ctx, processID, id)
}

func (c *Client) ReactivateArc(ctx context.Context, processID, id int64) (*bpm.Arc, error) {
	return c.arcs().reactivate(ctx, processID, id)
}

func (c *Client) PurgeArc(ctx context.Context, processID, id int64) error {
	return c.arcs().purge(ctx, processID, id)
}
