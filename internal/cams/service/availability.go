package service

import (
	"context"
	"time"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"github.com/bitfantasy/cams/internal/cams/repository"
)

// Availability 资产可用性判定结果
type Availability struct {
	AssetID    string `json:"asset_id"`
	Available  bool   `json:"available"`
	Status     string `json:"status,omitempty"`      // 资产当前状态
	Reason     string `json:"reason,omitempty"`      // 不可用原因
	ConflictID string `json:"conflict_id,omitempty"` // 占用它的报修单/工单/任务ID
	Error      string `json:"error,omitempty"`       // 查询出错（批量时单项隔离）
}

// AvailabilityService 资产可用性检查
// 可挂新报修单/保养任务 = 无未结报修单与保养任务 且 无未终结维修工单
// 且 不处于在途状态；已签收的返还记录可以豁免滞留的在途状态
type AvailabilityService struct {
	assetRepo  *repository.AssetRepository
	ticketRepo *repository.TicketRepository
	orderRepo  *repository.OrderRepository
	maintRepo  *repository.MaintenanceRepository
}

func NewAvailabilityService(repos *repository.Repositories) *AvailabilityService {
	return &AvailabilityService{
		assetRepo:  repos.Asset,
		ticketRepo: repos.Ticket,
		orderRepo:  repos.Order,
		maintRepo:  repos.Maintenance,
	}
}

// Check 单个资产可用性
func (s *AvailabilityService) Check(ctx context.Context, assetID string, now time.Time) (*Availability, error) {
	asset, err := s.assetRepo.FindByID(ctx, assetID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, entity.NewNotFound("钞箱不存在: %s", assetID)
		}
		return nil, err
	}

	result := &Availability{AssetID: assetID, Status: asset.Status}

	if asset.Status == entity.AssetStatusScrapped {
		result.Reason = "钞箱已报废"
		return result, nil
	}

	if ticket, err := s.ticketRepo.FindActiveByAssetID(ctx, assetID); err != nil {
		return nil, err
	} else if ticket != nil {
		result.Reason = "存在未结报修单"
		result.ConflictID = ticket.ID
		return result, nil
	}

	if task, err := s.maintRepo.FindActiveByAssetID(ctx, assetID); err != nil {
		return nil, err
	} else if task != nil {
		result.Reason = "存在未结保养任务"
		result.ConflictID = task.ID
		return result, nil
	}

	if order, err := s.orderRepo.FindActiveByAssetID(ctx, assetID); err != nil {
		return nil, err
	} else if order != nil {
		result.Reason = "存在未终结维修工单"
		result.ConflictID = order.ID
		return result, nil
	}

	if entity.IsAssetInTransit(asset.Status) {
		// 返还已签收则在途状态视为滞留数据，豁免
		superseded, err := s.returnConfirmed(ctx, assetID)
		if err != nil {
			return nil, err
		}
		if !superseded {
			result.Reason = "钞箱在途"
			return result, nil
		}
	}

	result.Available = true
	return result, nil
}

// CheckBatch 批量可用性检查
// 单项失败只标注在对应条目上，绝不拖垮整批
func (s *AvailabilityService) CheckBatch(ctx context.Context, assetIDs []string, now time.Time) []Availability {
	results := make([]Availability, 0, len(assetIDs))
	for _, id := range assetIDs {
		avail, err := s.Check(ctx, id, now)
		if err != nil {
			results = append(results, Availability{AssetID: id, Error: err.Error()})
			continue
		}
		results = append(results, *avail)
	}
	return results
}

// returnConfirmed 最近一张报修单的返还是否已签收
func (s *AvailabilityService) returnConfirmed(ctx context.Context, assetID string) (bool, error) {
	ticket, err := s.ticketRepo.FindLatestByAssetID(ctx, assetID)
	if err != nil {
		return false, err
	}
	if ticket == nil || ticket.Return == nil {
		return false, nil
	}
	return ticket.Return.ReceivedInField != nil, nil
}
