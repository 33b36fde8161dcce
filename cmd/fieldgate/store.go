package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"fieldgate.dev/internal/access"
	"fieldgate.dev/internal/fixture"
	"fieldgate.dev/internal/ids"
	"fieldgate.dev/internal/store/pg"
)

// demoFixture seeds the in-memory store when neither --fixture nor a DSN is
// given. The smoke scenario in internal/sim mirrors this population.
//
//go:embed demo.yaml
var demoFixture []byte

// openStore builds the store commands resolve against. A DSN selects
// PostgreSQL; otherwise the fixture file (or the embedded demo) is replayed
// into an in-memory store.
func openStore(ctx context.Context) (access.Store, func(), error) {
	dsn, err := configuredDSN()
	if err != nil {
		return nil, nil, err
	}
	if dsn != "" {
		st, err := pg.Open(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("opening store: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	}

	if path := resolveString(fixtureFlag, cfg.Fixture); path != "" {
		st, _, err := fixture.LoadAndBuild(ctx, path)
		if err != nil {
			return nil, nil, fmt.Errorf("loading fixture %s: %w", path, err)
		}
		return st, func() {}, nil
	}

	doc, err := fixture.Parse(demoFixture)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing embedded fixture: %w", err)
	}
	st, _, err := fixture.Build(ctx, doc)
	if err != nil {
		return nil, nil, fmt.Errorf("building embedded fixture: %w", err)
	}
	return st, func() {}, nil
}

// findUser resolves a user reference, accepting either a ULID id or an email.
func findUser(ctx context.Context, st access.Store, ref string) (access.User, error) {
	if ids.Valid(ref) {
		return st.Users().Find(ctx, ref)
	}
	return st.Users().FindByEmail(ctx, ref)
}

// principalFor resolves the acting principal from either a user reference or
// a signed token. Exactly one of the two must be set.
func principalFor(ctx context.Context, st access.Store, userRef, token string) (access.Principal, error) {
	switch {
	case token != "" && userRef != "":
		return access.Principal{}, fmt.Errorf("pass either --user or --token, not both")
	case token != "":
		claims, err := access.ParseAndValidate(token)
		if err != nil {
			return access.Principal{}, err
		}
		return access.PrincipalFromClaims(claims)
	case userRef != "":
		user, err := findUser(ctx, st, userRef)
		if err != nil {
			return access.Principal{}, fmt.Errorf("resolving user %s: %w", userRef, err)
		}
		return access.PrincipalFromUser(user), nil
	default:
		return access.Principal{}, fmt.Errorf("either --user or --token is required")
	}
}

// ownerIDFor resolves a record owner reference to the owning user's id.
func ownerIDFor(ctx context.Context, st access.Store, ownerRef string) (string, error) {
	if ownerRef == "" {
		return "", fmt.Errorf("--owner is required for record-level checks")
	}
	user, err := findUser(ctx, st, ownerRef)
	if err != nil {
		return "", fmt.Errorf("resolving owner %s: %w", ownerRef, err)
	}
	return user.ID, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
