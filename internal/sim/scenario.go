// Package sim generates synthetic authorization traffic against a seeded
// store. The smoke command replays a scenario and checks the outcome
// distribution instead of asserting individual decisions.
package sim

import (
	"math/rand"
	"time"

	"fieldgate.dev/internal/access"
)

// Check is one synthetic authorization request. Users and owners are
// referenced by fixture email; the caller resolves them to principals.
// RecordID empty means an object-level check.
type Check struct {
	Email      string
	Object     string
	Action     access.Action
	RecordID   string
	OwnerEmail string
}

// RecordRef names one synthetic record and its owner.
type RecordRef struct {
	Object string
	ID     string
	Owner  string
}

// Scenario describes the population synthetic checks draw from. It matches
// the demo fixture shipped with the CLI.
type Scenario struct {
	Name    string
	Emails  []string
	Objects []string
	Records []RecordRef
}

// RegionalSalesScenario mirrors the northwind organization in the demo
// fixture: a four-level role tree, three profiles and a handful of records
// spread across the sales reps.
func RegionalSalesScenario() Scenario {
	return Scenario{
		Name: "RegionalSales",
		Emails: []string{
			"ceo@northwind.test",
			"vp.sales@northwind.test",
			"rep.east@northwind.test",
			"rep.west@northwind.test",
			"auditor@northwind.test",
			"ops@fabrikam.test",
		},
		Objects: []string{"invoice", "account"},
		Records: []RecordRef{
			{Object: "invoice", ID: "inv-1001", Owner: "rep.east@northwind.test"},
			{Object: "invoice", ID: "inv-1002", Owner: "rep.west@northwind.test"},
			{Object: "invoice", ID: "inv-1003", Owner: "vp.sales@northwind.test"},
			{Object: "account", ID: "acc-2001", Owner: "rep.west@northwind.test"},
			{Object: "account", ID: "acc-2002", Owner: "ceo@northwind.test"},
		},
	}
}

var recordActions = []access.Action{access.ActionRead, access.ActionUpdate, access.ActionDelete}

var objectActions = []access.Action{access.ActionCreate, access.ActionRead, access.ActionUpdate, access.ActionDelete}

// Generator yields a reproducible stream of checks for a scenario.
type Generator struct {
	scenario Scenario
	rnd      *rand.Rand
}

func NewGenerator(seed int64) Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return Generator{scenario: RegionalSalesScenario(), rnd: rand.New(rand.NewSource(seed))}
}

func (g Generator) Scenario() Scenario { return g.scenario }

// NextCheck draws one check. Roughly four in five target a record; the rest
// are object-level checks, where create can appear.
func (g Generator) NextCheck() Check {
	email := g.scenario.Emails[g.rnd.Intn(len(g.scenario.Emails))]
	if g.rnd.Intn(5) == 0 {
		return Check{
			Email:  email,
			Object: g.scenario.Objects[g.rnd.Intn(len(g.scenario.Objects))],
			Action: objectActions[g.rnd.Intn(len(objectActions))],
		}
	}
	rec := g.scenario.Records[g.rnd.Intn(len(g.scenario.Records))]
	return Check{
		Email:      email,
		Object:     rec.Object,
		Action:     recordActions[g.rnd.Intn(len(recordActions))],
		RecordID:   rec.ID,
		OwnerEmail: rec.Owner,
	}
}
