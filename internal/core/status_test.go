package core_test

import (
	"testing"

	"tiletrack/internal/core"
)

func TestDispatchTransitions(t *testing.T) {
	allowed := []struct {
		from, to core.DispatchStatus
	}{
		{core.DispatchPending, core.DispatchReady},
		{core.DispatchPending, core.DispatchCancelled},
		{core.DispatchReady, core.DispatchInTransit},
		{core.DispatchReady, core.DispatchPending},
		{core.DispatchInTransit, core.DispatchDelivered},
		{core.DispatchDelivered, core.DispatchCompleted},
		{core.DispatchCancelled, core.DispatchPending},
	}
	for _, tc := range allowed {
		if !core.CanTransition(tc.from, tc.to) {
			t.Errorf("Expected %s → %s to be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct {
		from, to core.DispatchStatus
	}{
		{core.DispatchPending, core.DispatchInTransit}, // cannot skip Ready
		{core.DispatchPending, core.DispatchDelivered},
		{core.DispatchReady, core.DispatchCancelled}, // cancel is Pending-only
		{core.DispatchInTransit, core.DispatchPending},
		{core.DispatchInTransit, core.DispatchCancelled},
		{core.DispatchDelivered, core.DispatchInTransit},
		{core.DispatchCompleted, core.DispatchPending}, // terminal
		{core.DispatchCancelled, core.DispatchReady},   // reopen goes through Pending
	}
	for _, tc := range forbidden {
		if core.CanTransition(tc.from, tc.to) {
			t.Errorf("Expected %s → %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestBookingDispatchTransitions(t *testing.T) {
	allowed := []struct {
		from, to core.BookingDispatchStatus
	}{
		{core.BookingDispatchPending, core.BookingDispatchVerified},
		{core.BookingDispatchPending, core.BookingDispatchDisputed},
		{core.BookingDispatchVerified, core.BookingDispatchComplete},
		{core.BookingDispatchVerified, core.BookingDispatchDisputed},
		{core.BookingDispatchDisputed, core.BookingDispatchVerified},
	}
	for _, tc := range allowed {
		if !core.CanTransitionBookingDispatch(tc.from, tc.to) {
			t.Errorf("Expected %s → %s to be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct {
		from, to core.BookingDispatchStatus
	}{
		{core.BookingDispatchPending, core.BookingDispatchComplete}, // must verify first
		{core.BookingDispatchComplete, core.BookingDispatchPending}, // terminal
		{core.BookingDispatchComplete, core.BookingDispatchDisputed},
		{core.BookingDispatchDisputed, core.BookingDispatchPending},
	}
	for _, tc := range forbidden {
		if core.CanTransitionBookingDispatch(tc.from, tc.to) {
			t.Errorf("Expected %s → %s to be rejected", tc.from, tc.to)
		}
	}
}
