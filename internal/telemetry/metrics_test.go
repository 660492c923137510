package telemetry

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveAdmission_RoutesToOneCounter(t *testing.T) {
	admitted := testutil.ToFloat64(admittedTotal)
	throttled := testutil.ToFloat64(throttledTotal)
	failed := testutil.ToFloat64(admissionErrorsTotal)

	ObserveAdmission(true, nil)
	ObserveAdmission(false, nil)
	// An error takes precedence over the allowed flag.
	ObserveAdmission(true, errors.New("store down"))

	if got := testutil.ToFloat64(admittedTotal) - admitted; got != 1 {
		t.Fatalf("admitted delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(throttledTotal) - throttled; got != 1 {
		t.Fatalf("throttled delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(admissionErrorsTotal) - failed; got != 1 {
		t.Fatalf("error delta = %v, want 1", got)
	}
}

func TestFulfillmentCounters(t *testing.T) {
	fulfilled := testutil.ToFloat64(fulfilledTotal)
	conflicts := testutil.ToFloat64(conflictsTotal)

	ObserveFulfilled()
	ObserveConflict()
	ObserveConflict()

	if got := testutil.ToFloat64(fulfilledTotal) - fulfilled; got != 1 {
		t.Fatalf("fulfilled delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(conflictsTotal) - conflicts; got != 2 {
		t.Fatalf("conflict delta = %v, want 2", got)
	}
}
