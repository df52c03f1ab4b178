package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"github.com/bitfantasy/cams/internal/cams/testutil"
)

func TestMaintenanceLifecycle(t *testing.T) {
	router, db := setupCamsTest(t)
	token := testutil.DefaultTestToken()

	a1 := testutil.SeedAsset(t, db, "asset-m1", "SN-M-0001", entity.AssetStatusOK)
	a2 := testutil.SeedAsset(t, db, "asset-m2", "SN-M-0002", entity.AssetStatusOK)

	w := testutil.DoRequest(router, "POST", "/api/v1/maintenance-tasks", map[string]interface{}{
		"title":         "季度例行保养",
		"bank_id":       "bank-001",
		"operator_id":   "op-001",
		"asset_ids":     []string{a1.ID, a2.ID, a1.ID}, // 重复ID应去重
		"scheduled_at":  time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"interval_days": 90,
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create task: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	task := resp["data"].(map[string]interface{})
	taskID := task["id"].(string)
	if task["status"] != entity.MaintStatusScheduled {
		t.Errorf("new task should be scheduled, got %v", task["status"])
	}
	items := task["items"].([]interface{})
	if len(items) != 2 {
		t.Errorf("duplicate asset ids should be deduped, got %d items", len(items))
	}

	// 认领 → 开工 → 完成
	w = testutil.DoRequest(router, "POST", "/api/v1/maintenance-tasks/"+taskID+"/claim", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("claim: %d: %s", w.Code, w.Body.String())
	}

	// 未开工不能直接完成
	w = testutil.DoRequest(router, "POST", "/api/v1/maintenance-tasks/"+taskID+"/complete",
		map[string]interface{}{}, token)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("completing a scheduled task should be 422, got %d", w.Code)
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/maintenance-tasks/"+taskID+"/start", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("start: %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/maintenance-tasks/"+taskID+"/complete",
		map[string]interface{}{
			"results": map[string]string{a1.ID: "正常", a2.ID: "更换滚轮"},
		}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	task = resp["data"].(map[string]interface{})
	if task["status"] != entity.MaintStatusCompleted {
		t.Errorf("task should be completed, got %v", task["status"])
	}
	// 周期任务完成时必须推算下一期到期日
	if task["next_due_date"] == nil {
		t.Error("recurring task should get a next_due_date on completion")
	}

	// 完成后资产重新可用
	w = testutil.DoRequest(router, "GET", "/api/v1/assets/"+a1.ID+"/availability", nil, token)
	resp = testutil.ParseResponse(w)
	if resp["data"].(map[string]interface{})["available"] != true {
		t.Error("asset should be available after maintenance completes")
	}
}

func TestMaintenanceRejectsBusyAsset(t *testing.T) {
	router, db := setupCamsTest(t)
	token := testutil.DefaultTestToken()

	asset := testutil.SeedAsset(t, db, "asset-mb1", "SN-MB-0001", entity.AssetStatusOK)
	createTicket(t, router, token, map[string]interface{}{
		"type":    "on_site",
		"bank_id": "bank-001",
		"items":   []map[string]interface{}{{"asset_id": asset.ID}},
	})

	w := testutil.DoRequest(router, "POST", "/api/v1/maintenance-tasks", map[string]interface{}{
		"title":        "冲突保养",
		"bank_id":      "bank-001",
		"asset_ids":    []string{asset.ID},
		"scheduled_at": time.Now().Format(time.RFC3339),
	}, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("busy asset should yield 409, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["conflict_id"] == nil || data["conflict_id"] == "" {
		t.Error("conflict payload should carry the occupying ticket id")
	}
}

func TestMaintenanceClaimConflict(t *testing.T) {
	router, db := setupCamsTest(t)
	tokenA := testutil.GenerateTestToken("op-a", "运维A", "org-op", "operator", nil)
	tokenB := testutil.GenerateTestToken("op-b", "运维B", "org-op", "operator", nil)

	asset := testutil.SeedAsset(t, db, "asset-mc1", "SN-MC-0001", entity.AssetStatusOK)

	w := testutil.DoRequest(router, "POST", "/api/v1/maintenance-tasks", map[string]interface{}{
		"title":        "认领冲突测试",
		"bank_id":      "bank-001",
		"asset_ids":    []string{asset.ID},
		"scheduled_at": time.Now().Format(time.RFC3339),
	}, tokenA)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d: %s", w.Code, w.Body.String())
	}
	taskID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(router, "POST", "/api/v1/maintenance-tasks/"+taskID+"/claim", nil, tokenA)
	if w.Code != http.StatusOK {
		t.Fatalf("first claim: %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(router, "POST", "/api/v1/maintenance-tasks/"+taskID+"/claim", nil, tokenB)
	if w.Code != http.StatusConflict {
		t.Fatalf("second claim should be 409, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["conflict_id"] != "op-a" {
		t.Errorf("conflict payload should name the assignee, got %v", data["conflict_id"])
	}
}

func TestMaintenanceReschedule(t *testing.T) {
	router, db := setupCamsTest(t)
	token := testutil.DefaultTestToken()

	asset := testutil.SeedAsset(t, db, "asset-mr1", "SN-MR-0001", entity.AssetStatusOK)

	w := testutil.DoRequest(router, "POST", "/api/v1/maintenance-tasks", map[string]interface{}{
		"title":        "改期测试",
		"bank_id":      "bank-001",
		"asset_ids":    []string{asset.ID},
		"scheduled_at": time.Now().Format(time.RFC3339),
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d: %s", w.Code, w.Body.String())
	}
	originalID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(router, "POST", "/api/v1/maintenance-tasks/"+originalID+"/reschedule",
		map[string]interface{}{
			"scheduled_at": time.Now().Add(72 * time.Hour).Format(time.RFC3339),
		}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("reschedule: %d: %s", w.Code, w.Body.String())
	}
	next := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if next["prev_task_id"] != originalID {
		t.Errorf("new task should link to the original, got %v", next["prev_task_id"])
	}
	if next["status"] != entity.MaintStatusScheduled {
		t.Errorf("new task should be scheduled, got %v", next["status"])
	}
	items := next["items"].([]interface{})
	if len(items) != 1 {
		t.Errorf("new task should carry over the asset details, got %d", len(items))
	}

	// 原任务置rescheduled，终结
	var original entity.MaintenanceTask
	if err := db.Where("id = ?", originalID).First(&original).Error; err != nil {
		t.Fatalf("reload original: %v", err)
	}
	if original.Status != entity.MaintStatusRescheduled {
		t.Errorf("original task should be rescheduled, got %s", original.Status)
	}

	// 已终结的任务不能再认领
	w = testutil.DoRequest(router, "POST", "/api/v1/maintenance-tasks/"+originalID+"/claim", nil, token)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("claiming a terminal task should be 422, got %d", w.Code)
	}
}

// 保养转维修：例行工单建立后占用资产
func TestMaintenanceCreateWorkOrders(t *testing.T) {
	router, db := setupCamsTest(t)
	token := testutil.DefaultTestToken()

	asset := testutil.SeedAsset(t, db, "asset-mw1", "SN-MW-0001", entity.AssetStatusOK)

	w := testutil.DoRequest(router, "POST", "/api/v1/maintenance-tasks", map[string]interface{}{
		"title":        "保养转维修",
		"bank_id":      "bank-001",
		"asset_ids":    []string{asset.ID},
		"scheduled_at": time.Now().Format(time.RFC3339),
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create task: %d: %s", w.Code, w.Body.String())
	}
	taskID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(router, "POST", "/api/v1/maintenance-tasks/"+taskID+"/work-orders", nil, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create work orders: %d: %s", w.Code, w.Body.String())
	}
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("expected 1 routine order, got %d", len(items))
	}
	order := items[0].(map[string]interface{})
	if order["type"] != entity.OrderTypeRoutine {
		t.Errorf("maintenance-sourced orders should be routine, got %v", order["type"])
	}
	if order["maintenance_id"] != taskID {
		t.Errorf("order should reference the task, got %v", order["maintenance_id"])
	}
}

func TestReconcileSweepEndpoint(t *testing.T) {
	router, db := setupCamsTest(t)
	token := testutil.DefaultTestToken()

	testutil.SeedAsset(t, db, "asset-rc1", "SN-RC-0001", entity.AssetStatusOK)

	w := testutil.DoRequest(router, "POST", "/api/v1/admin/reconcile", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("sweep: %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["skipped"] != false {
		t.Errorf("sweep without redis should not be skipped, got %v", data["skipped"])
	}
}
