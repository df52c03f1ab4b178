package entity

import "testing"

func TestAssetTransitions(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{AssetStatusOK, AssetStatusBad, true},
		{AssetStatusOK, AssetStatusInTransitCenter, true},
		{AssetStatusBad, AssetStatusInRepair, true},
		{AssetStatusBad, AssetStatusOK, true},
		{AssetStatusInTransitCenter, AssetStatusInRepair, true},
		{AssetStatusInRepair, AssetStatusReadyForPickup, true},
		{AssetStatusInRepair, AssetStatusScrapped, true},
		{AssetStatusReadyForPickup, AssetStatusInTransitField, true},
		{AssetStatusReadyForPickup, AssetStatusOK, true},
		{AssetStatusInTransitField, AssetStatusOK, true},

		{AssetStatusOK, AssetStatusInRepair, false},
		{AssetStatusOK, AssetStatusReadyForPickup, false},
		{AssetStatusInRepair, AssetStatusBad, false},
		{AssetStatusScrapped, AssetStatusOK, false},
		{AssetStatusScrapped, AssetStatusBad, false},
		{AssetStatusInTransitField, AssetStatusInRepair, false},
	}
	for _, c := range cases {
		if got := CanTransitAsset(c.from, c.to); got != c.want {
			t.Errorf("CanTransitAsset(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestScrappedIsTerminal(t *testing.T) {
	if len(ValidAssetTransitions[AssetStatusScrapped]) != 0 {
		t.Errorf("scrapped must have no outgoing transitions, got %v", ValidAssetTransitions[AssetStatusScrapped])
	}
}

func TestAssetInTransit(t *testing.T) {
	if !IsAssetInTransit(AssetStatusInTransitCenter) {
		t.Error("in_transit_to_center should be in transit")
	}
	if !IsAssetInTransit(AssetStatusInTransitField) {
		t.Error("in_transit_to_field should be in transit")
	}
	if IsAssetInTransit(AssetStatusInRepair) {
		t.Error("in_repair should not be in transit")
	}
}

func TestTicketTransitions(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{TicketStatusOpen, TicketStatusInDelivery, true},
		{TicketStatusOpen, TicketStatusPendingApproval, true},
		{TicketStatusPendingApproval, TicketStatusApprovedOnSite, true},
		{TicketStatusApprovedOnSite, TicketStatusInProgress, true},
		{TicketStatusInDelivery, TicketStatusReceived, true},
		{TicketStatusReceived, TicketStatusInProgress, true},
		{TicketStatusInProgress, TicketStatusResolved, true},
		{TicketStatusResolved, TicketStatusReturnShipped, true},
		{TicketStatusResolved, TicketStatusClosed, true},
		{TicketStatusResolved, TicketStatusInProgress, true},
		{TicketStatusReturnShipped, TicketStatusClosed, true},

		{TicketStatusOpen, TicketStatusResolved, false},
		{TicketStatusInProgress, TicketStatusClosed, false},
		{TicketStatusClosed, TicketStatusInProgress, false},
		{TicketStatusClosed, TicketStatusResolved, false},
	}
	for _, c := range cases {
		if got := CanTransitTicket(c.from, c.to); got != c.want {
			t.Errorf("CanTransitTicket(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}

	if !IsTicketTerminal(TicketStatusClosed) {
		t.Error("closed should be terminal")
	}
	if IsTicketTerminal(TicketStatusResolved) {
		t.Error("resolved should not be terminal")
	}
}

func TestOrderTransitions(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{OrderStatusReceived, OrderStatusDiagnosing, true},
		{OrderStatusReceived, OrderStatusOnProgress, true},
		{OrderStatusReceived, OrderStatusCompleted, true},
		{OrderStatusDiagnosing, OrderStatusOnProgress, true},
		{OrderStatusOnProgress, OrderStatusCompleted, true},
		{OrderStatusOnProgress, OrderStatusScrapped, true},

		{OrderStatusCompleted, OrderStatusOnProgress, false},
		{OrderStatusScrapped, OrderStatusReceived, false},
		{OrderStatusOnProgress, OrderStatusDiagnosing, false},
	}
	for _, c := range cases {
		if got := CanTransitOrder(c.from, c.to); got != c.want {
			t.Errorf("CanTransitOrder(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}

	if !IsOrderTerminal(OrderStatusCompleted) || !IsOrderTerminal(OrderStatusScrapped) {
		t.Error("completed and scrapped should both be terminal")
	}
	if IsOrderTerminal(OrderStatusOnProgress) {
		t.Error("on_progress should not be terminal")
	}
}

func TestMaintTransitions(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{MaintStatusScheduled, MaintStatusInProgress, true},
		{MaintStatusScheduled, MaintStatusCancelled, true},
		{MaintStatusScheduled, MaintStatusRescheduled, true},
		{MaintStatusInProgress, MaintStatusCompleted, true},
		{MaintStatusInProgress, MaintStatusCancelled, true},

		{MaintStatusScheduled, MaintStatusCompleted, false},
		{MaintStatusCompleted, MaintStatusInProgress, false},
		{MaintStatusRescheduled, MaintStatusInProgress, false},
		{MaintStatusInProgress, MaintStatusRescheduled, false},
	}
	for _, c := range cases {
		if got := CanTransitMaint(c.from, c.to); got != c.want {
			t.Errorf("CanTransitMaint(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}

	for _, status := range []string{MaintStatusCompleted, MaintStatusCancelled, MaintStatusRescheduled} {
		if !IsMaintTerminal(status) {
			t.Errorf("%s should be terminal", status)
		}
	}
	if IsMaintTerminal(MaintStatusScheduled) {
		t.Error("scheduled should not be terminal")
	}
}
