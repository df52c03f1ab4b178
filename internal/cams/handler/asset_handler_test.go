package handler

import (
	"net/http"
	"testing"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"github.com/bitfantasy/cams/internal/cams/testutil"
)

func TestAssetRegister(t *testing.T) {
	router, _ := setupCamsTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(router, "POST", "/api/v1/assets", map[string]interface{}{
		"serial_number": "SN-REG-0001",
		"model":         "CB-2000",
		"bank_id":       "bank-001",
		"operator_id":   "op-001",
		"location":      "西湖支行01号机",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["status"] != entity.AssetStatusOK {
		t.Errorf("new asset should start ok, got %v", data["status"])
	}
	if data["serial_number"] != "SN-REG-0001" {
		t.Errorf("unexpected serial: %v", data["serial_number"])
	}

	// 序列号全局唯一
	w = testutil.DoRequest(router, "POST", "/api/v1/assets", map[string]interface{}{
		"serial_number": "SN-REG-0001",
		"bank_id":       "bank-002",
	}, token)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate serial should be 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAssetGetAndList(t *testing.T) {
	router, db := setupCamsTest(t)
	token := testutil.DefaultTestToken()

	testutil.SeedAsset(t, db, "asset-g1", "SN-G-0001", entity.AssetStatusOK)
	testutil.SeedAsset(t, db, "asset-g2", "SN-G-0002", entity.AssetStatusBad)

	w := testutil.DoRequest(router, "GET", "/api/v1/assets/asset-g1", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/assets?status=bad", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	if len(items) != 1 {
		t.Errorf("expected 1 bad asset, got %d", len(items))
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/assets/no-such-id", nil, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing asset should be 404, got %d", w.Code)
	}
}

func TestAssetHistoryRecordsTransitions(t *testing.T) {
	router, db := setupCamsTest(t)
	token := testutil.DefaultTestToken()

	asset := testutil.SeedAsset(t, db, "asset-h1", "SN-H-0001", entity.AssetStatusOK)

	createTicket(t, router, token, map[string]interface{}{
		"type":     "shipment",
		"bank_id":  "bank-001",
		"items":    []map[string]interface{}{{"asset_id": asset.ID}},
		"shipment": map[string]interface{}{"method": "self"},
	})

	w := testutil.DoRequest(router, "GET", "/api/v1/assets/"+asset.ID+"/history", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("history: %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	if len(items) == 0 {
		t.Error("history should contain the ok → in_transit_to_center transition")
	}
}

func TestAssetAvailabilityEndpoints(t *testing.T) {
	router, db := setupCamsTest(t)
	token := testutil.DefaultTestToken()

	free := testutil.SeedAsset(t, db, "asset-av1", "SN-AV-0001", entity.AssetStatusOK)
	busy := testutil.SeedAsset(t, db, "asset-av2", "SN-AV-0002", entity.AssetStatusOK)

	createTicket(t, router, token, map[string]interface{}{
		"type":    "on_site",
		"bank_id": "bank-001",
		"items":   []map[string]interface{}{{"asset_id": busy.ID}},
	})

	w := testutil.DoRequest(router, "GET", "/api/v1/assets/"+free.ID+"/availability", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("availability: %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["available"] != true {
		t.Errorf("free asset should be available, got %v", data)
	}

	// 批量：单项错误不拖垮整批
	w = testutil.DoRequest(router, "POST", "/api/v1/assets/availability", map[string]interface{}{
		"asset_ids": []string{free.ID, busy.ID, "no-such-asset"},
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("batch availability: %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	items := resp["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(items))
	}
	first := items[0].(map[string]interface{})
	second := items[1].(map[string]interface{})
	third := items[2].(map[string]interface{})
	if first["available"] != true {
		t.Errorf("free asset entry should be available: %v", first)
	}
	if second["available"] == true {
		t.Errorf("busy asset entry should not be available: %v", second)
	}
	if third["error"] == nil || third["error"] == "" {
		t.Errorf("missing asset entry should carry an error: %v", third)
	}
}

func TestAssetDeleteOnlyScrapped(t *testing.T) {
	router, db := setupCamsTest(t)
	token := testutil.DefaultTestToken()

	ok := testutil.SeedAsset(t, db, "asset-del1", "SN-DEL-0001", entity.AssetStatusOK)
	scrapped := testutil.SeedAsset(t, db, "asset-del2", "SN-DEL-0002", entity.AssetStatusScrapped)

	w := testutil.DoRequest(router, "DELETE", "/api/v1/assets/"+ok.ID, nil, token)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("deleting a non-scrapped asset should be 422, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "DELETE", "/api/v1/assets/"+scrapped.ID, nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("deleting a scrapped asset: %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(router, "GET", "/api/v1/assets/"+scrapped.ID, nil, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("deleted asset should be 404, got %d", w.Code)
	}
}
