package service

import (
	"context"
	"testing"
	"time"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"github.com/bitfantasy/cams/internal/cams/repository"
	"github.com/bitfantasy/cams/internal/cams/testutil"
	"gorm.io/gorm"
)

func setupAvailabilityTest(t *testing.T) (*gorm.DB, *AvailabilityService) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	return db, NewAvailabilityService(repos)
}

func TestCheckAvailableAsset(t *testing.T) {
	db, svc := setupAvailabilityTest(t)

	testutil.SeedAsset(t, db, "av-ok", "SN-AV-1", entity.AssetStatusOK)

	avail, err := svc.Check(context.Background(), "av-ok", time.Now())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !avail.Available {
		t.Errorf("ok asset with no open records should be available, reason=%s", avail.Reason)
	}
}

func TestCheckScrappedAsset(t *testing.T) {
	db, svc := setupAvailabilityTest(t)

	testutil.SeedAsset(t, db, "av-scrap", "SN-AV-2", entity.AssetStatusScrapped)

	avail, err := svc.Check(context.Background(), "av-scrap", time.Now())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if avail.Available {
		t.Error("scrapped asset must never be available")
	}
	if avail.Status != entity.AssetStatusScrapped {
		t.Errorf("expected status scrapped, got %s", avail.Status)
	}
}

func TestCheckBusyByTicket(t *testing.T) {
	db, svc := setupAvailabilityTest(t)

	testutil.SeedAsset(t, db, "av-busy", "SN-AV-3", entity.AssetStatusBad)
	ticket := seedTicketWithAsset(t, db, "tk-av", "TK-20260831-0201", entity.TicketStatusOpen, "av-busy", time.Now())

	avail, err := svc.Check(context.Background(), "av-busy", time.Now())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if avail.Available {
		t.Error("asset on an open ticket must not be available")
	}
	if avail.ConflictID != ticket.ID {
		t.Errorf("expected conflict id %s, got %s", ticket.ID, avail.ConflictID)
	}
}

func TestCheckNotFound(t *testing.T) {
	_, svc := setupAvailabilityTest(t)

	_, err := svc.Check(context.Background(), "no-such-asset", time.Now())
	if err == nil {
		t.Fatal("expected not found error")
	}
	if entity.KindOf(err) != entity.ErrKindNotFound {
		t.Errorf("expected not_found, got %v", err)
	}
}

// 批量检查中单项错误只标注在对应条目上
func TestCheckBatchIsolatesErrors(t *testing.T) {
	db, svc := setupAvailabilityTest(t)

	testutil.SeedAsset(t, db, "av-b1", "SN-AVB-1", entity.AssetStatusOK)

	results := svc.CheckBatch(context.Background(), []string{"av-b1", "no-such-asset"}, time.Now())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Available || results[0].Error != "" {
		t.Errorf("first item should be available without error, got %+v", results[0])
	}
	if results[1].Error == "" {
		t.Error("second item should carry its own error")
	}
	if results[1].AssetID != "no-such-asset" {
		t.Errorf("error entry should keep the asset id, got %s", results[1].AssetID)
	}
}
