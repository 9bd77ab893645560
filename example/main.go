package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meikuraledutech/bpm"
	"github.com/meikuraledutech/bpm/editor"
	"github.com/meikuraledutech/bpm/memory"
	"github.com/meikuraledutech/bpm/postgres"
)

func main() {
	ctx := context.Background()

	// Postgres when DATABASE_URL is set, the in-memory store otherwise.
	var store bpm.Store = memory.New()
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			log.Fatalf("connect: %v", err)
		}
		defer pool.Close()

		pg := postgres.New(pool)
		if err := pg.CreateSchema(ctx); err != nil {
			log.Fatalf("schema: %v", err)
		}
		fmt.Println("schema created")
		store = pg
	}

	// ── Process and role ──────────────────────────────────────────────
	process, err := store.CreateProcess(ctx, &bpm.Process{TenantID: 1, Name: "Employee onboarding"})
	if err != nil {
		log.Fatalf("create process: %v", err)
	}
	clerk, err := store.CreateRole(ctx, &bpm.Role{TenantID: 1, Name: "HR clerk", Active: true})
	if err != nil {
		log.Fatalf("create role: %v", err)
	}

	graph := editor.NewGraph(process.ID)
	positions := editor.NewPositions(editor.DefaultPlacement, 1)
	orch := editor.NewOrchestrator(store, 1, graph, positions, editor.OrchestratorOptions{})
	if err := orch.Load(ctx); err != nil {
		log.Fatalf("load: %v", err)
	}

	// ── Nodes ─────────────────────────────────────────────────────────
	collect, err := orch.CreateActivity(ctx, bpm.Activity{
		Name:   "Collect documents",
		Kind:   bpm.ActivityHumanTask,
		RoleID: &clerk.ID,
	})
	if err != nil {
		log.Fatalf("create activity: %v", err)
	}
	sign, err := orch.CreateActivity(ctx, bpm.Activity{Name: "Sign contract", Kind: bpm.ActivityManual})
	if err != nil {
		log.Fatalf("create activity: %v", err)
	}
	complete, err := orch.CreateGateway(ctx, bpm.Gateway{Name: "Documents complete?", Kind: bpm.GatewayExclusive})
	if err != nil {
		log.Fatalf("create gateway: %v", err)
	}
	fmt.Printf("created %d activities and %d gateway\n", len(graph.Activities()), len(graph.Gateways()))

	// ── Arcs ──────────────────────────────────────────────────────────
	for _, a := range []bpm.Arc{
		bpm.NewArc(process.ID, bpm.StartEvent, collect.Endpoint()),
		bpm.NewArc(process.ID, collect.Endpoint(), complete.Endpoint()),
		{
			ProcessID:  process.ID,
			SourceKind: bpm.KindGateway,
			SourceID:   complete.ID,
			TargetKind: bpm.KindActivity,
			TargetID:   sign.ID,
			Condition:  "all documents received",
			Active:     true,
		},
		bpm.NewArc(process.ID, sign.Endpoint(), bpm.EndEvent),
	} {
		if _, err := orch.CreateArc(ctx, a); err != nil {
			log.Fatalf("create arc: %v", err)
		}
	}

	// A node cannot be connected to itself.
	_, err = orch.CreateArc(ctx, bpm.NewArc(process.ID, sign.Endpoint(), sign.Endpoint()))
	fmt.Printf("\nself loop: %v\n", err)

	// The gateway still has arcs, so it cannot be deactivated.
	err = orch.DeleteGateway(ctx, complete.ID)
	var rej *bpm.RejectionError
	if errors.As(err, &rej) {
		fmt.Printf("delete gateway: %d %s\n", rej.Status, rej.Message)
	}

	// ── Routed diagram ────────────────────────────────────────────────
	router := editor.NewRouter(positions)
	router.Reset(graph.ActiveArcs())
	fmt.Println("\nconnectors:")
	for _, r := range router.All() {
		fmt.Printf("  %s -> %s  %v\n", r.Arc.Source(), r.Arc.Target(), r.Path.Points)
	}

	// ── Retrieve ──────────────────────────────────────────────────────
	result, err := store.GetProcess(ctx, 1, process.ID)
	if err != nil {
		log.Fatalf("get process: %v", err)
	}
	fmt.Println("\nprocess retrieved:")
	printJSON(result)
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
