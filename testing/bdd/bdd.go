// Package bdd provides Given-When-Then test fixtures for command types.
//
// A fixture seeds an in-memory event log with the Given events, transacts
// one command against it and checks the Result:
//
//	bdd.Given(t, counter, ferret.Properties{"name": "clicks"},
//		ferret.NewEvent("incremented", nil),
//	).
//		When(increment, nil).
//		Then(ferret.NewEvent("incremented", ferret.Properties{"by": 1}))
package bdd

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/AshkanYarmoradi/go-ferret"
	"github.com/AshkanYarmoradi/go-ferret/adapters/memory"
)

// TB is an alias for testing.TB interface to allow mocking in tests
type TB = testing.TB

// TestFixture runs one command against an aggregate with a known history.
type TestFixture struct {
	t        TB
	ctx      context.Context
	aggType  *ferret.AggregateType
	idProps  ferret.Properties
	given    []ferret.Event
	repo     *ferret.Repository
	result   ferret.Result
	err      error
	executed bool
}

// Given sets up the aggregate identified by idProps with historical events.
// The events are committed before the command runs.
func Given(t TB, aggType *ferret.AggregateType, idProps ferret.Properties, events ...ferret.Event) *TestFixture {
	t.Helper()
	return &TestFixture{
		t:       t,
		ctx:     context.Background(),
		aggType: aggType,
		idProps: idProps,
		given:   events,
		repo:    ferret.NewRepository(memory.NewAdapter(), ferret.WithAggregateTypes(aggType)),
	}
}

// WithContext sets a custom context for the command execution.
func (f *TestFixture) WithContext(ctx context.Context) *TestFixture {
	f.ctx = ctx
	return f
}

// WithRepository replaces the in-memory repository.
func (f *TestFixture) WithRepository(repo *ferret.Repository) *TestFixture {
	f.repo = repo
	return f
}

// Repository returns the repository the fixture commits to.
func (f *TestFixture) Repository() *ferret.Repository {
	return f.repo
}

// When commits the given events and transacts a command built from props.
// The ID properties from Given are merged under props.
func (f *TestFixture) When(ct *ferret.CommandType, props ferret.Properties) *TestFixture {
	f.t.Helper()

	if len(f.given) > 0 {
		agg, err := f.aggType.New(f.idProps)
		if err != nil {
			f.t.Fatalf("bdd: invalid aggregate ID %v: %v", f.idProps, err)
		}
		for _, event := range f.given {
			agg = agg.ApplyNew(event)
		}
		result, err := f.repo.Commit(f.ctx, agg)
		if err != nil {
			f.t.Fatalf("bdd: failed to store given events: %v", err)
		}
		if !result.IsOk() {
			f.t.Fatalf("bdd: failed to store given events: %s", result.Outcome())
		}
	}

	cmd := ct.Message(f.idProps.Merge(props))
	f.result, f.err = ferret.Transact(f.ctx, f.repo, ct, cmd)
	f.executed = true
	return f
}

func (f *TestFixture) mustBeExecuted(step string) {
	f.t.Helper()
	if !f.executed {
		f.t.Fatal(fmt.Sprintf("bdd: %s() must be called after When() - no command was transacted", step))
	}
}

func (f *TestFixture) mustBeOk() {
	f.t.Helper()
	if f.err != nil {
		f.t.Fatalf("Expected success but got error: %v", f.err)
	}
	if !f.result.IsOk() {
		f.t.Fatalf("Expected ok but got %s %s", f.result.Outcome(), f.result.Reason())
	}
}

// Then asserts the command was accepted and produced the expected events.
// Each expected property must be present with an equal value; properties
// the expectation leaves out are not compared.
func (f *TestFixture) Then(expected ...ferret.Event) *TestFixture {
	f.t.Helper()
	f.mustBeExecuted("Then")
	f.mustBeOk()

	actual := f.result.Events()
	if len(actual) != len(expected) {
		f.t.Fatalf("Expected %d events, got %d.\nExpected: %+v\nActual: %+v",
			len(expected), len(actual), expected, actual)
	}

	for i, want := range expected {
		if mismatch := compareEvent(want, actual[i]); mismatch != "" {
			f.t.Errorf("Event %d mismatch: %s\nExpected: %+v\nActual: %+v",
				i, mismatch, want, actual[i])
		}
	}
	return f
}

// ThenNoEvents asserts the command was accepted without producing events.
func (f *TestFixture) ThenNoEvents() *TestFixture {
	f.t.Helper()
	f.mustBeExecuted("ThenNoEvents")
	f.mustBeOk()

	if events := f.result.Events(); len(events) > 0 {
		f.t.Errorf("Expected no events, got %d: %+v", len(events), events)
	}
	return f
}

// ThenRejected asserts the command was rejected. An empty reason matches
// any reason.
func (f *TestFixture) ThenRejected(reason string) *TestFixture {
	f.t.Helper()
	f.mustBeExecuted("ThenRejected")

	if f.err != nil {
		f.t.Fatalf("Expected rejection but got error: %v", f.err)
	}
	if !f.result.IsRejected() {
		f.t.Fatalf("Expected rejected but got %s", f.result.Outcome())
	}
	if reason != "" && f.result.Reason() != reason {
		f.t.Errorf("Expected rejection reason %q, got %q", reason, f.result.Reason())
	}
	return f
}

// ThenError asserts the transaction failed with the expected error.
func (f *TestFixture) ThenError(expectedErr error) {
	f.t.Helper()
	f.mustBeExecuted("ThenError")

	if f.err == nil {
		f.t.Fatalf("Expected error but got %s", f.result.Outcome())
	}
	if !errors.Is(f.err, expectedErr) {
		f.t.Errorf("Expected error %v, got %v", expectedErr, f.err)
	}
}

// ThenErrorContains asserts that the error message contains a substring.
func (f *TestFixture) ThenErrorContains(substring string) {
	f.t.Helper()
	f.mustBeExecuted("ThenErrorContains")

	if f.err == nil {
		f.t.Fatalf("Expected error but got %s", f.result.Outcome())
	}
	if !strings.Contains(f.err.Error(), substring) {
		f.t.Errorf("Expected error containing %q, got %q", substring, f.err.Error())
	}
}

// ThenState asserts that the resulting aggregate state holds the expected
// values.
func (f *TestFixture) ThenState(expected ferret.Properties) *TestFixture {
	f.t.Helper()
	f.mustBeExecuted("ThenState")

	agg := f.result.Aggregate()
	if agg == nil {
		f.t.Fatalf("Expected an aggregate but the result has none (err: %v)", f.err)
	}
	state := agg.State()
	for key, want := range expected {
		got, ok := state[key]
		if !ok {
			f.t.Errorf("State key %q missing, state: %+v", key, state)
			continue
		}
		if !sameValue(want, got) {
			f.t.Errorf("State key %q: expected %v, got %v", key, want, got)
		}
	}
	return f
}

// ThenVersion asserts the version of the resulting aggregate.
func (f *TestFixture) ThenVersion(expected int64) *TestFixture {
	f.t.Helper()
	f.mustBeExecuted("ThenVersion")

	if v := f.result.Version(); v != expected {
		f.t.Errorf("Expected version %d, got %d", expected, v)
	}
	return f
}

// Result returns the transaction result for custom assertions.
func (f *TestFixture) Result() (ferret.Result, error) {
	return f.result, f.err
}

func compareEvent(want, got ferret.Event) string {
	if want.Type != got.Type {
		return fmt.Sprintf("type %q != %q", want.Type, got.Type)
	}
	for key, value := range want.Properties {
		actual, ok := got.Properties[key]
		if !ok {
			return fmt.Sprintf("property %q missing", key)
		}
		if !sameValue(value, actual) {
			return fmt.Sprintf("property %q: %v != %v", key, value, actual)
		}
	}
	return ""
}

// sameValue treats numbers of different Go types as equal when they
// print the same, so 1 matches int64(1) and float64(1).
func sameValue(want, got interface{}) bool {
	if reflect.DeepEqual(ferret.NormalizeValue(want), ferret.NormalizeValue(got)) {
		return true
	}
	return ferret.Properties{"v": want}.String("v") == ferret.Properties{"v": got}.String("v")
}
