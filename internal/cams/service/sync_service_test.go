package service

import (
	"context"
	"testing"
	"time"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"github.com/bitfantasy/cams/internal/cams/repository"
	"github.com/bitfantasy/cams/internal/cams/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupSyncTest(t *testing.T) (*gorm.DB, *SyncService, *repository.Repositories) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	sync := NewSyncService(repos.ActivityLog, zap.NewNop())
	return db, sync, repos
}

func seedTicketWithAsset(t *testing.T, db *gorm.DB, ticketID, code, status, assetID string, createdAt time.Time) *entity.ServiceTicket {
	t.Helper()
	ticket := &entity.ServiceTicket{
		ID:         ticketID,
		TicketCode: code,
		Status:     status,
		Type:       entity.TicketTypeShipment,
		Priority:   "normal",
		BankID:     "bank-001",
		OperatorID: "op-001",
		ReportedBy: "user-001",
		CreatedAt:  createdAt,
		Items: []entity.TicketAssetDetail{
			{ID: ticketID + "-item", TicketID: ticketID, AssetID: assetID, SortOrder: 1},
		},
	}
	if err := db.Create(ticket).Error; err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	return ticket
}

func seedOrder(t *testing.T, db *gorm.DB, id, assetID, status string, ticketID *string, createdAt time.Time) *entity.RepairWorkOrder {
	t.Helper()
	order := &entity.RepairWorkOrder{
		ID:        id,
		AssetID:   assetID,
		TicketID:  ticketID,
		Type:      entity.OrderTypeOnDemand,
		Status:    status,
		CreatedAt: createdAt,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

// 同一钞箱跨报修单经历多个维修周期时，旧周期的completed工单
// 不能让新报修单被误判为已解决
func TestEvaluateResolutionIgnoresPriorCycle(t *testing.T) {
	db, sync, _ := setupSyncTest(t)
	ctx := context.Background()

	testutil.SeedAsset(t, db, "asset-cycle", "SN-CYCLE-1", entity.AssetStatusInRepair)

	now := time.Now()
	// 上一个维修周期：完工工单在本报修单创建之前
	seedOrder(t, db, "order-old", "asset-cycle", entity.OrderStatusCompleted, nil, now.Add(-48*time.Hour))

	ticket := seedTicketWithAsset(t, db, "tk-cycle", "TK-20260831-0001", entity.TicketStatusInProgress, "asset-cycle", now.Add(-time.Hour))

	resolved, err := sync.EvaluateResolution(ctx, db, ticket)
	if err != nil {
		t.Fatalf("EvaluateResolution: %v", err)
	}
	if resolved {
		t.Error("ticket with only a prior-cycle completed order must not be resolved")
	}

	// 本周期的工单完工后才可判定
	tid := ticket.ID
	seedOrder(t, db, "order-new", "asset-cycle", entity.OrderStatusCompleted, &tid, now)

	resolved, err = sync.EvaluateResolution(ctx, db, ticket)
	if err != nil {
		t.Fatalf("EvaluateResolution: %v", err)
	}
	if !resolved {
		t.Error("ticket should be resolved once the current-cycle order is terminal")
	}
}

func TestEvaluateResolutionRequiresTerminalOrder(t *testing.T) {
	db, sync, _ := setupSyncTest(t)
	ctx := context.Background()

	testutil.SeedAsset(t, db, "asset-open", "SN-OPEN-1", entity.AssetStatusInRepair)
	now := time.Now()
	ticket := seedTicketWithAsset(t, db, "tk-open", "TK-20260831-0002", entity.TicketStatusInProgress, "asset-open", now.Add(-time.Hour))
	tid := ticket.ID
	seedOrder(t, db, "order-wip", "asset-open", entity.OrderStatusOnProgress, &tid, now)

	resolved, err := sync.EvaluateResolution(ctx, db, ticket)
	if err != nil {
		t.Fatalf("EvaluateResolution: %v", err)
	}
	if resolved {
		t.Error("ticket with an unfinished order must not be resolved")
	}
}

func TestEvaluateResolutionReplacementBranch(t *testing.T) {
	db, sync, _ := setupSyncTest(t)
	ctx := context.Background()

	old := testutil.SeedAsset(t, db, "asset-repl", "SN-REPL-1", entity.AssetStatusScrapped)
	now := time.Now()
	ticket := seedTicketWithAsset(t, db, "tk-repl", "TK-20260831-0003", entity.TicketStatusInProgress, old.ID, now.Add(-time.Hour))

	tid := ticket.ID
	order := &entity.RepairWorkOrder{
		ID:                   "order-repl",
		AssetID:              old.ID,
		TicketID:             &tid,
		Type:                 entity.OrderTypeOnDemand,
		Status:               entity.OrderStatusCompleted,
		ReplacementRequested: true,
		CreatedAt:            now,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}

	// 替换箱尚未登记：不可判定为已解决
	resolved, err := sync.EvaluateResolution(ctx, db, ticket)
	if err != nil {
		t.Fatalf("EvaluateResolution: %v", err)
	}
	if resolved {
		t.Error("replacement branch without a registered replacement must not resolve")
	}

	// 登记替换箱并建立替换链
	repl := testutil.SeedAsset(t, db, "asset-repl-new", "SN-REPL-2", entity.AssetStatusOK)
	if err := db.Model(&entity.Asset{}).Where("id = ?", old.ID).
		Update("replaced_by_id", repl.ID).Error; err != nil {
		t.Fatalf("link replacement: %v", err)
	}

	resolved, err = sync.EvaluateResolution(ctx, db, ticket)
	if err != nil {
		t.Fatalf("EvaluateResolution: %v", err)
	}
	if !resolved {
		t.Error("ticket should resolve once the replacement asset is registered and ok")
	}
}

func TestSyncResolutionPromotesAndReverts(t *testing.T) {
	db, sync, _ := setupSyncTest(t)
	ctx := context.Background()

	testutil.SeedAsset(t, db, "asset-sync", "SN-SYNC-1", entity.AssetStatusInRepair)
	now := time.Now()
	ticket := seedTicketWithAsset(t, db, "tk-sync", "TK-20260831-0004", entity.TicketStatusInProgress, "asset-sync", now.Add(-time.Hour))
	tid := ticket.ID
	seedOrder(t, db, "order-sync", "asset-sync", entity.OrderStatusCompleted, &tid, now)

	changed, err := sync.SyncResolution(ctx, db, ticket, "tester", now, nil)
	if err != nil {
		t.Fatalf("SyncResolution: %v", err)
	}
	if changed != entity.TicketStatusResolved {
		t.Fatalf("expected promotion to resolved, got %q", changed)
	}
	if ticket.Status != entity.TicketStatusResolved {
		t.Errorf("in-memory ticket status should be resolved, got %s", ticket.Status)
	}
	if got := testutil.TicketStatus(t, db, ticket.ID); got != entity.TicketStatusResolved {
		t.Errorf("db ticket status should be resolved, got %s", got)
	}

	// 幂等：已纠偏过的报修单再跑一遍不应有变化
	changed, err = sync.SyncResolution(ctx, db, ticket, "tester", now, nil)
	if err != nil {
		t.Fatalf("SyncResolution repeat: %v", err)
	}
	if changed != "" {
		t.Errorf("repeat run should be a no-op, got %q", changed)
	}

	// 工单被撤销后误标为resolved的回退
	if err := db.Model(&entity.RepairWorkOrder{}).Where("id = ?", "order-sync").
		Update("status", entity.OrderStatusOnProgress).Error; err != nil {
		t.Fatalf("reopen order: %v", err)
	}
	changed, err = sync.SyncResolution(ctx, db, ticket, "tester", now, nil)
	if err != nil {
		t.Fatalf("SyncResolution revert: %v", err)
	}
	if changed != entity.TicketStatusInProgress {
		t.Fatalf("expected revert to in_progress, got %q", changed)
	}
	if got := testutil.TicketStatus(t, db, ticket.ID); got != entity.TicketStatusInProgress {
		t.Errorf("db ticket status should be in_progress after revert, got %s", got)
	}
}

// 对账协程持有的报修单快照可能落后于并发的业务流程：
// 快照还停在in_progress、库里已被推进到return_shipped时，
// 纠偏必须以库内状态为准放弃本次修正，不能把报修单拖回resolved
func TestSyncResolutionIgnoresStaleSnapshot(t *testing.T) {
	db, sync, _ := setupSyncTest(t)
	ctx := context.Background()

	testutil.SeedAsset(t, db, "asset-stale", "SN-STALE-1", entity.AssetStatusInTransitField)
	now := time.Now()
	ticket := seedTicketWithAsset(t, db, "tk-stale", "TK-20260831-0006", entity.TicketStatusInProgress, "asset-stale", now.Add(-time.Hour))
	tid := ticket.ID
	seedOrder(t, db, "order-stale", "asset-stale", entity.OrderStatusCompleted, &tid, now)

	// 并发流程已将报修单推进到返还在途，内存快照仍是in_progress
	if err := db.Model(&entity.ServiceTicket{}).Where("id = ?", ticket.ID).
		Update("status", entity.TicketStatusReturnShipped).Error; err != nil {
		t.Fatalf("advance ticket: %v", err)
	}

	changed, err := sync.SyncResolution(ctx, db, ticket, "tester", now, nil)
	if err != nil {
		t.Fatalf("SyncResolution: %v", err)
	}
	if changed != "" {
		t.Fatalf("stale snapshot must not trigger a correction, got %q", changed)
	}
	if got := testutil.TicketStatus(t, db, ticket.ID); got != entity.TicketStatusReturnShipped {
		t.Errorf("ticket must stay return_shipped, got %s", got)
	}
}

func TestApplyRejectsUnknownEvent(t *testing.T) {
	db, sync, _ := setupSyncTest(t)

	_, err := sync.Apply(context.Background(), db, Event{Kind: EventKind("bogus")})
	if err == nil {
		t.Fatal("expected error for unknown event kind")
	}
	if entity.KindOf(err) != entity.ErrKindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestApplyTicketOpenedRejectsNonOKAsset(t *testing.T) {
	db, sync, _ := setupSyncTest(t)
	ctx := context.Background()

	testutil.SeedAsset(t, db, "asset-busy", "SN-BUSY-1", entity.AssetStatusInRepair)
	ticket := seedTicketWithAsset(t, db, "tk-busy", "TK-20260831-0005", entity.TicketStatusOpen, "asset-busy", time.Now())

	_, err := sync.Apply(ctx, db, Event{
		Kind:       EventTicketOpened,
		Ticket:     ticket,
		OperatorID: "tester",
	})
	if err == nil {
		t.Fatal("expected precondition failure for non-ok asset")
	}
	if entity.KindOf(err) != entity.ErrKindPreconditionFailed {
		t.Errorf("expected precondition error, got %v", err)
	}
}
