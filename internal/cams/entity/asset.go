package entity

import "time"

// Asset 钞箱资产
// 状态只允许由状态同步引擎修改，请求处理器不得直接改写
type Asset struct {
	ID           string `json:"id" gorm:"primaryKey;size:32"`
	SerialNumber string `json:"serial_number" gorm:"size:64;uniqueIndex;not null"`
	Model        string `json:"model" gorm:"size:64"`              // 钞箱型号
	Status       string `json:"status" gorm:"size:30;default:ok"` // ok/bad/in_transit_to_center/in_repair/ready_for_pickup/in_transit_to_field/scrapped

	// 归属
	BankID     string `json:"bank_id" gorm:"size:32;not null;index"`     // 所属银行
	OperatorID string `json:"operator_id" gorm:"size:32;not null;index"` // 运维商（现场托管方）
	Location   string `json:"location" gorm:"size:200"`                  // 当前网点/位置

	// 替换链
	ReplacedByID *string `json:"replaced_by_id" gorm:"size:32"` // 替换本钞箱的新钞箱
	ReplacesID   *string `json:"replaces_id" gorm:"size:32"`    // 本钞箱所替换的旧钞箱

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Notes     string    `json:"notes" gorm:"type:text"`
}

func (Asset) TableName() string {
	return "cams_assets"
}

// 资产状态
const (
	AssetStatusOK              = "ok"
	AssetStatusBad             = "bad"
	AssetStatusInTransitCenter = "in_transit_to_center"
	AssetStatusInRepair        = "in_repair"
	AssetStatusReadyForPickup  = "ready_for_pickup"
	AssetStatusInTransitField  = "in_transit_to_field"
	AssetStatusScrapped        = "scrapped"
)

// ValidAssetTransitions 资产状态机（正向迁移）
// 报修单软删除的补偿恢复（任意状态→ok）不走本表，见 SyncService.applyTicketDeleted
var ValidAssetTransitions = map[string][]string{
	AssetStatusOK:              {AssetStatusBad, AssetStatusInTransitCenter},
	AssetStatusBad:             {AssetStatusInTransitCenter, AssetStatusInRepair, AssetStatusOK},
	AssetStatusInTransitCenter: {AssetStatusInRepair, AssetStatusOK},
	AssetStatusInRepair:        {AssetStatusReadyForPickup, AssetStatusScrapped, AssetStatusOK},
	AssetStatusReadyForPickup:  {AssetStatusInTransitField, AssetStatusOK},
	AssetStatusInTransitField:  {AssetStatusOK},
	AssetStatusScrapped:        {},
}

// CanTransitAsset 判断资产状态迁移是否合法
func CanTransitAsset(from, to string) bool {
	for _, s := range ValidAssetTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsAssetInTransit 是否处于在途状态
func IsAssetInTransit(status string) bool {
	return status == AssetStatusInTransitCenter || status == AssetStatusInTransitField
}
