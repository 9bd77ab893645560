// Package httpapi exposes a bpm.Store as a REST API on fiber.
//
// Element routes live under /processes/:pid/{activities,gateways,arcs}.
// Process and role routes are tenant scoped under /tenants/:tid. Failures
// are answered with {"error": message, "code": CODE}; the message of a
// business rejection is meant to be shown to users verbatim.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/meikuraledutech/bpm"
)

// Schema is implemented by stores that manage their own tables.
type Schema interface {
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error
}

// Options configures New.
type Options struct {
	Logger *zap.Logger
	// Registry receives the request metrics and is served on /metrics.
	// A fresh registry is used when nil.
	Registry *prometheus.Registry
}

// New returns a fiber app serving store.
func New(store bpm.Store, opts Options) *fiber.App {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c fiber.Ctx, err error) error {
			return fail(c, err)
		},
	})
	app.Use(requestID())
	app.Use(observe(logger, newMetrics(reg)))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// ── Schema ────────────────────────────────────────────────────────
	if schema, ok := store.(Schema); ok {
		app.Post("/schema", func(c fiber.Ctx) error {
			if err := schema.CreateSchema(c.Context()); err != nil {
				return fail(c, err)
			}
			return c.JSON(fiber.Map{"message": "schema created"})
		})
		app.Delete("/schema", func(c fiber.Ctx) error {
			if err := schema.DropSchema(c.Context()); err != nil {
				return fail(c, err)
			}
			return c.JSON(fiber.Map{"message": "schema dropped"})
		})
	}

	mountTenant(app.Group("/tenants/:tid"), store)

	proc := app.Group("/processes/:pid")
	mount(proc.Group("/activities"), family[bpm.Activity]{
		list:       store.ListActivities,
		listActive: store.ListActiveActivities,
		get:        store.GetActivity,
		create:     store.CreateActivity,
		update:     store.UpdateActivity,
		setID:      func(a *bpm.Activity, id int64) { a.ID = id },
		delete:     store.DeleteActivity,
		reactivate: store.ReactivateActivity,
		purge:      store.PurgeActivity,
	})
	mount(proc.Group("/gateways"), family[bpm.Gateway]{
		list:       store.ListGateways,
		listActive: store.ListActiveGateways,
		get:        store.GetGateway,
		create:     store.CreateGateway,
		update:     store.UpdateGateway,
		setID:      func(g *bpm.Gateway, id int64) { g.ID = id },
		delete:     store.DeleteGateway,
		reactivate: store.ReactivateGateway,
		purge:      store.PurgeGateway,
	})
	mount(proc.Group("/arcs"), family[bpm.Arc]{
		list:       store.ListArcs,
		listActive: store.ListActiveArcs,
		get:        store.GetArc,
		create:     store.CreateArc,
		update:     store.UpdateArc,
		setID:      func(a *bpm.Arc, id int64) { a.ID = id },
		delete:     store.DeleteArc,
		reactivate: store.ReactivateArc,
		purge:      store.PurgeArc,
	})

	return app
}

func mountTenant(r fiber.Router, store bpm.Store) {
	r.Post("/processes", func(c fiber.Ctx) error {
		tid, err := paramID(c, "tid")
		if err != nil {
			return err
		}
		var p bpm.Process
		if err := c.Bind().JSON(&p); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		p.TenantID = tid
		out, err := store.CreateProcess(c.Context(), &p)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(http.StatusCreated).JSON(out)
	})

	r.Get("/processes/:pid", func(c fiber.Ctx) error {
		p, err := getProcess(c, store)
		if err != nil {
			return fail(c, err)
		}
		p.Activities, p.Gateways, p.Arcs = nil, nil, nil
		return c.JSON(p)
	})

	r.Get("/processes/:pid/detail", func(c fiber.Ctx) error {
		p, err := getProcess(c, store)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(p)
	})

	r.Get("/roles", func(c fiber.Ctx) error {
		tid, err := paramID(c, "tid")
		if err != nil {
			return err
		}
		roles, err := store.ListRoles(c.Context(), tid)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(roles)
	})

	r.Post("/roles", func(c fiber.Ctx) error {
		tid, err := paramID(c, "tid")
		if err != nil {
			return err
		}
		var role bpm.Role
		if err := c.Bind().JSON(&role); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		role.TenantID = tid
		out, err := store.CreateRole(c.Context(), &role)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(http.StatusCreated).JSON(out)
	})
}

func getProcess(c fiber.Ctx, store bpm.Store) (*bpm.Process, error) {
	tid, err := paramID(c, "tid")
	if err != nil {
		return nil, err
	}
	pid, err := paramID(c, "pid")
	if err != nil {
		return nil, err
	}
	return store.GetProcess(c.Context(), tid, pid)
}

// family binds the operations of one element kind to its routes.
type family[T any] struct {
	list       func(ctx context.Context, processID int64) ([]T, error)
	listActive func(ctx context.Context, processID int64) ([]T, error)
	get        func(ctx context.Context, processID, id int64) (*T, error)
	create     func(ctx context.Context, processID int64, v *T) (*T, error)
	update     func(ctx context.Context, processID int64, v *T) (*T, error)
	setID      func(v *T, id int64)
	delete     func(ctx context.Context, processID, id int64) error
	reactivate func(ctx context.Context, processID, id int64) (*T, error)
	purge      func(ctx context.Context, processID, id int64) error
}

func mount[T any](r fiber.Router, f family[T]) {
	listWith := func(list func(context.Context, int64) ([]T, error)) fiber.Handler {
		return func(c fiber.Ctx) error {
			pid, err := paramID(c, "pid")
			if err != nil {
				return err
			}
			out, err := list(c.Context(), pid)
			if err != nil {
				return fail(c, err)
			}
			return c.JSON(out)
		}
	}
	r.Get("", listWith(f.list))
	r.Get("/active", listWith(f.listActive))

	r.Get("/:id", func(c fiber.Ctx) error {
		pid, id, err := ids(c)
		if err != nil {
			return err
		}
		out, err := f.get(c.Context(), pid, id)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(out)
	})

	r.Post("", func(c fiber.Ctx) error {
		pid, err := paramID(c, "pid")
		if err != nil {
			return err
		}
		var v T
		if err := c.Bind().JSON(&v); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		out, err := f.create(c.Context(), pid, &v)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(http.StatusCreated).JSON(out)
	})

	r.Put("/:id", func(c fiber.Ctx) error {
		pid, id, err := ids(c)
		if err != nil {
			return err
		}
		var v T
		if err := c.Bind().JSON(&v); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		f.setID(&v, id)
		out, err := f.update(c.Context(), pid, &v)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(out)
	})

	r.Delete("/:id", func(c fiber.Ctx) error {
		pid, id, err := ids(c)
		if err != nil {
			return err
		}
		if err := f.delete(c.Context(), pid, id); err != nil {
			return fail(c, err)
		}
		return c.SendStatus(http.StatusNoContent)
	})

	r.Patch("/:id/reactivate", func(c fiber.Ctx) error {
		pid, id, err := ids(c)
		if err != nil {
			return err
		}
		out, err := f.reactivate(c.Context(), pid, id)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(out)
	})

	r.Delete("/:id/permanent", func(c fiber.Ctx) error {
		pid, id, err := ids(c)
		if err != nil {
			return err
		}
		if err := f.purge(c.Context(), pid, id); err != nil {
			return fail(c, err)
		}
		return c.SendStatus(http.StatusNoContent)
	})
}

func ids(c fiber.Ctx) (int64, int64, error) {
	pid, err := paramID(c, "pid")
	if err != nil {
		return 0, 0, err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return 0, 0, err
	}
	return pid, id, nil
}

// paramID parses a positive numeric route parameter. The returned error is
// a *fiber.Error answered with 400 by the app's error handler.
func paramID(c fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// statusFor maps store errors onto HTTP statuses.
func statusFor(err error) int {
	var rej *bpm.RejectionError
	if errors.As(err, &rej) && rej.Status != 0 {
		return rej.Status
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	switch {
	case errors.Is(err, bpm.ErrProcessNotFound),
		errors.Is(err, bpm.ErrActivityNotFound),
		errors.Is(err, bpm.ErrGatewayNotFound),
		errors.Is(err, bpm.ErrArcNotFound):
		return http.StatusNotFound
	case errors.Is(err, bpm.ErrNodeInUse):
		return http.StatusConflict
	case errors.Is(err, bpm.ErrInvalid),
		errors.Is(err, bpm.ErrSelfLoop),
		errors.Is(err, bpm.ErrUnknownEndpoint):
		return http.StatusUnprocessableEntity
	case errors.Is(err, bpm.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail answers err. Server faults get a fixed message; the cause is kept
// for the request log.
func fail(c fiber.Ctx, err error) error {
	status := statusFor(err)
	msg := bpm.Explain(err)
	if status >= http.StatusInternalServerError {
		msg = "internal error"
	}
	c.Locals(localError, err)

	body := fiber.Map{"error": msg}
	if code := bpm.Code(err); code != "" {
		body["code"] = code
	}
	return c.Status(status).JSON(body)
}
