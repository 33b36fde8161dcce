package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"fieldgate.dev/internal/access"
	"fieldgate.dev/internal/fixture"
	"fieldgate.dev/internal/obs"
	"fieldgate.dev/internal/sim"
)

// minMixedChecks is the run length from which the outcome distribution is
// asserted to contain both allows and denies.
const minMixedChecks = 25

var (
	smokeChecks      int
	smokeSeed        int64
	smokeMetricsAddr string
)

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Replay randomized checks against the demo fixture",
	Long: `Replay a randomized stream of access checks against the embedded demo
fixture and verify the invariants that must hold for it: record access
never exceeds the object gate, owners with a gate grant can reach their
own records, cross-organization checks always deny, and field visibility
is empty wherever the object gate denies read.

With --metrics-addr the run serves Prometheus metrics while it executes.`,
	Example: `  # Run the default 500 checks
  fieldgate smoke

  # Reproduce a run and scrape its metrics
  fieldgate smoke --checks 10000 --seed 42 --metrics-addr :9090`,
	RunE: runSmoke,
}

func runSmoke(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	checks := resolveInt(smokeChecks, cfg.Smoke.Checks)
	seed := smokeSeed
	if seed == 0 {
		seed = cfg.Smoke.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	metricsAddr := resolveString(smokeMetricsAddr, cfg.Smoke.MetricsAddr)

	doc, err := fixture.Parse(demoFixture)
	if err != nil {
		return fmt.Errorf("parsing embedded fixture: %w", err)
	}
	st, idx, err := fixture.Build(ctx, doc)
	if err != nil {
		return fmt.Errorf("building embedded fixture: %w", err)
	}

	resolver, err := access.NewResolver(st, access.WithMetrics())
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", obs.Handler())
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 15 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("metrics listen: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		fmt.Printf("Serving metrics on %s/metrics\n", metricsAddr)
	}

	gen := sim.NewGenerator(seed)
	var tally sim.Tally

	for i := 0; i < checks; i++ {
		c := gen.NextCheck()

		user, ok := idx.User(c.Email)
		if !ok {
			return fmt.Errorf("scenario user %s missing from fixture", c.Email)
		}
		p := access.PrincipalFromUser(user)

		var (
			d     access.Decision
			owner access.User
		)
		if c.RecordID == "" {
			d, err = resolver.Authorize(ctx, p, c.Object, c.Action)
		} else {
			owner, ok = idx.User(c.OwnerEmail)
			if !ok {
				return fmt.Errorf("scenario owner %s missing from fixture", c.OwnerEmail)
			}
			d, err = resolver.AuthorizeRecord(ctx, p, c.Object, c.Action, c.RecordID, owner.ID)
		}
		if err != nil {
			return fmt.Errorf("check %d (%s %s %s): %w", i, c.Email, c.Action, c.Object, err)
		}
		tally.Add(d, err)

		if c.RecordID == "" {
			continue
		}

		gate, err := resolver.CanPerform(ctx, p.ProfileID, c.Object, c.Action)
		if err != nil {
			return fmt.Errorf("check %d object gate: %w", i, err)
		}
		if d.Allowed && !gate {
			return fmt.Errorf("check %d: record access for %s on %s/%s exceeds the object gate", i, c.Email, c.Object, c.RecordID)
		}
		if d.Allowed && owner.OrganizationID != p.OrganizationID {
			return fmt.Errorf("check %d: %s reached %s/%s across organizations", i, c.Email, c.Object, c.RecordID)
		}
		if gate && owner.ID == p.UserID && !d.Allowed {
			return fmt.Errorf("check %d: owner %s denied %s on own record %s/%s (%s)", i, c.Email, c.Action, c.Object, c.RecordID, d.Reason)
		}
	}

	// Field visibility must stay behind the object read gate for every
	// user and object in the scenario.
	scen := gen.Scenario()
	for _, email := range scen.Emails {
		user, ok := idx.User(email)
		if !ok {
			return fmt.Errorf("scenario user %s missing from fixture", email)
		}
		p := access.PrincipalFromUser(user)
		for _, object := range scen.Objects {
			visible, err := resolver.VisibleFields(ctx, p, object)
			if err != nil {
				return fmt.Errorf("visible fields for %s on %s: %w", email, object, err)
			}
			canRead, err := resolver.CanPerform(ctx, p.ProfileID, object, access.ActionRead)
			if err != nil {
				return fmt.Errorf("object gate for %s on %s: %w", email, object, err)
			}
			if !canRead && len(visible) != 0 {
				return fmt.Errorf("%s sees fields of %s past a denied object gate: %v", email, object, visible)
			}
		}
	}

	if tally.Checks >= minMixedChecks && (tally.Allowed == 0 || tally.DeniedTotal() == 0) {
		return fmt.Errorf("expected a mix of outcomes, got %d allowed / %d denied", tally.Allowed, tally.DeniedTotal())
	}

	out := struct {
		Checks   int                   `json:"checks"`
		Allowed  int                   `json:"allowed"`
		Denied   map[access.Reason]int `json:"denied"`
		DenyRate float64               `json:"deny_rate"`
		Seed     int64                 `json:"seed"`
	}{tally.Checks, tally.Allowed, tally.Denied, tally.DenyRate(), seed}
	if err := printJSON(out); err != nil {
		return err
	}

	fmt.Printf("✅ fieldgate smoke passed: checks=%d allowed=%d denied=%d\n", tally.Checks, tally.Allowed, tally.DeniedTotal())
	return nil
}

func init() {
	smokeCmd.Flags().IntVar(&smokeChecks, "checks", 0, "number of checks to run (default 500)")
	smokeCmd.Flags().Int64Var(&smokeSeed, "seed", 0, "random seed (default: time-based)")
	smokeCmd.Flags().StringVar(&smokeMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
}
