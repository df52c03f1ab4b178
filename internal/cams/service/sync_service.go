package service

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"github.com/bitfantasy/cams/internal/cams/repository"
	"github.com/bitfantasy/cams/internal/cams/sse"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventKind 生命周期事件类型
type EventKind string

const (
	EventTicketOpened     EventKind = "ticket_opened"
	EventDeliveryCreated  EventKind = "delivery_created"
	EventDeliveryReceived EventKind = "delivery_received"
	EventRepairStarted    EventKind = "repair_started"
	EventRepairCompleted  EventKind = "repair_completed"
	EventReturnCreated    EventKind = "return_created"
	EventPickupConfirmed  EventKind = "pickup_confirmed"
	EventReturnReceived   EventKind = "return_received"
	EventTicketDeleted    EventKind = "ticket_deleted"
)

// Event 同步引擎事件
type Event struct {
	Kind   EventKind
	Ticket *entity.ServiceTicket   // 已加载的报修单（含Items）
	Order  *entity.RepairWorkOrder // RepairCompleted必填

	// PickupConfirmed可指定资产子集，空表示报修单全部资产
	AssetIDs []string

	HasShipment          bool // TicketOpened：创建时是否带物流信息
	QCPassed             bool // RepairCompleted
	ReplacementRequested bool // RepairCompleted

	OperatorID string
	Now        time.Time
}

// Outcome 事件应用结果
type Outcome struct {
	AssetStatus  map[string]string // 资产ID → 新状态
	TicketStatus string            // 空串表示报修单状态未变

	broadcasts []func() // 事务提交后才推送的SSE事件
}

// Broadcast 推送本次变更产生的SSE事件，调用方在事务提交成功后调用
func (o *Outcome) Broadcast() {
	if o == nil {
		return
	}
	for _, fn := range o.broadcasts {
		fn()
	}
}

func (o *Outcome) queueBroadcast(fn func()) {
	if o == nil {
		return
	}
	o.broadcasts = append(o.broadcasts, fn)
}

// SyncService 状态同步引擎
// 所有资产/报修单状态变更的唯一入口：每个变更事件在调用方事务内
// 重算并原子落库，任何前置条件不满足都让整个事务回滚，
// 不允许出现跨实体状态的部分可见
type SyncService struct {
	logRepo *repository.ActivityLogRepository
	logger  *zap.Logger
}

func NewSyncService(logRepo *repository.ActivityLogRepository, logger *zap.Logger) *SyncService {
	return &SyncService{logRepo: logRepo, logger: logger}
}

// Apply 在tx内应用一个生命周期事件
func (s *SyncService) Apply(ctx context.Context, tx *gorm.DB, ev Event) (*Outcome, error) {
	if ev.Now.IsZero() {
		ev.Now = time.Now()
	}
	out := &Outcome{AssetStatus: map[string]string{}}

	var err error
	switch ev.Kind {
	case EventTicketOpened:
		err = s.applyTicketOpened(ctx, tx, ev, out)
	case EventDeliveryCreated:
		err = s.applyDeliveryCreated(ctx, tx, ev, out)
	case EventDeliveryReceived:
		err = s.applyDeliveryReceived(ctx, tx, ev, out)
	case EventRepairStarted:
		err = s.applyRepairStarted(ctx, tx, ev, out)
	case EventRepairCompleted:
		err = s.applyRepairCompleted(ctx, tx, ev, out)
	case EventReturnCreated:
		err = s.applyReturnCreated(ctx, tx, ev, out)
	case EventPickupConfirmed:
		err = s.applyPickupConfirmed(ctx, tx, ev, out)
	case EventReturnReceived:
		err = s.applyReturnReceived(ctx, tx, ev, out)
	case EventTicketDeleted:
		err = s.applyTicketDeleted(ctx, tx, ev, out)
	default:
		err = entity.NewValidation("未知事件类型: %s", ev.Kind)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SyncService) applyTicketOpened(ctx context.Context, tx *gorm.DB, ev Event, out *Outcome) error {
	ticket := ev.Ticket
	for _, item := range ticket.Items {
		asset, err := s.loadAsset(tx, item.AssetID)
		if err != nil {
			return err
		}
		if asset.Status != entity.AssetStatusOK {
			return entity.NewPrecondition(asset.Status, ticket.ID, "钞箱 %s 当前状态不允许报修", asset.SerialNumber)
		}
		target := entity.AssetStatusBad
		if ev.HasShipment {
			target = entity.AssetStatusInTransitCenter
		}
		if err := s.transitAsset(ctx, tx, out, asset,target, ev.OperatorID); err != nil {
			return err
		}
		out.AssetStatus[asset.ID] = target
	}
	if ev.HasShipment {
		if err := s.transitTicket(ctx, tx, out, ticket,entity.TicketStatusInDelivery, ev.OperatorID, nil); err != nil {
			return err
		}
		out.TicketStatus = entity.TicketStatusInDelivery
	}
	return nil
}

func (s *SyncService) applyDeliveryCreated(ctx context.Context, tx *gorm.DB, ev Event, out *Outcome) error {
	ticket := ev.Ticket
	if ticket.Status != entity.TicketStatusOpen && ticket.Status != entity.TicketStatusPendingApproval {
		return entity.NewConflict(ticket.Status, ticket.ID, "报修单当前状态不允许创建送修")
	}
	for _, item := range ticket.Items {
		asset, err := s.loadAsset(tx, item.AssetID)
		if err != nil {
			return err
		}
		if asset.Status == entity.AssetStatusScrapped {
			continue
		}
		if err := s.transitAsset(ctx, tx, out, asset,entity.AssetStatusInTransitCenter, ev.OperatorID); err != nil {
			return err
		}
		out.AssetStatus[asset.ID] = entity.AssetStatusInTransitCenter
	}
	if err := s.transitTicket(ctx, tx, out, ticket,entity.TicketStatusInDelivery, ev.OperatorID, nil); err != nil {
		return err
	}
	out.TicketStatus = entity.TicketStatusInDelivery
	return nil
}

func (s *SyncService) applyDeliveryReceived(ctx context.Context, tx *gorm.DB, ev Event, out *Outcome) error {
	ticket := ev.Ticket
	if ticket.Status != entity.TicketStatusInDelivery {
		return entity.NewConflict(ticket.Status, ticket.ID, "报修单不在送修途中，无法签收")
	}
	for _, item := range ticket.Items {
		asset, err := s.loadAsset(tx, item.AssetID)
		if err != nil {
			return err
		}
		// 已报废的钞箱不动
		if asset.Status == entity.AssetStatusScrapped {
			continue
		}
		if err := s.transitAsset(ctx, tx, out, asset,entity.AssetStatusInRepair, ev.OperatorID); err != nil {
			return err
		}
		out.AssetStatus[asset.ID] = entity.AssetStatusInRepair
	}
	if err := s.transitTicket(ctx, tx, out, ticket,entity.TicketStatusReceived, ev.OperatorID, nil); err != nil {
		return err
	}
	out.TicketStatus = entity.TicketStatusReceived
	return nil
}

func (s *SyncService) applyRepairStarted(ctx context.Context, tx *gorm.DB, ev Event, out *Outcome) error {
	// 现场维修：资产未经物流签收，开工时补齐 bad → in_repair
	for _, assetID := range ev.AssetIDs {
		asset, err := s.loadAsset(tx, assetID)
		if err != nil {
			return err
		}
		if asset.Status == entity.AssetStatusBad {
			if err := s.transitAsset(ctx, tx, out, asset,entity.AssetStatusInRepair, ev.OperatorID); err != nil {
				return err
			}
			out.AssetStatus[asset.ID] = entity.AssetStatusInRepair
		}
	}
	ticket := ev.Ticket
	if ticket == nil {
		return nil
	}
	if ticket.Status == entity.TicketStatusReceived || ticket.Status == entity.TicketStatusApprovedOnSite {
		if err := s.transitTicket(ctx, tx, out, ticket,entity.TicketStatusInProgress, ev.OperatorID, nil); err != nil {
			return err
		}
		out.TicketStatus = entity.TicketStatusInProgress
	}
	return nil
}

func (s *SyncService) applyRepairCompleted(ctx context.Context, tx *gorm.DB, ev Event, out *Outcome) error {
	order := ev.Order
	if entity.IsOrderTerminal(order.Status) {
		return entity.NewConflict(order.Status, order.ID, "维修工单已终结，不能重复完工")
	}
	asset, err := s.loadAsset(tx, order.AssetID)
	if err != nil {
		return err
	}

	// 未走开工事件的现场维修，补齐 bad → in_repair，状态链不跳步
	if asset.Status == entity.AssetStatusBad {
		if err := s.transitAsset(ctx, tx, out, asset,entity.AssetStatusInRepair, ev.OperatorID); err != nil {
			return err
		}
	}

	// 申请替换时无论质检结果一律报废
	target := entity.AssetStatusReadyForPickup
	if ev.ReplacementRequested || !ev.QCPassed {
		target = entity.AssetStatusScrapped
	}
	if err := s.transitAsset(ctx, tx, out, asset,target, ev.OperatorID); err != nil {
		return err
	}
	out.AssetStatus[asset.ID] = target

	// 完工落库：质检不通过同样记completed（维修周期已结束），质检结果另存
	qc := ev.QCPassed
	now := ev.Now
	updates := map[string]interface{}{
		"status":                entity.OrderStatusCompleted,
		"qc_passed":             qc,
		"replacement_requested": ev.ReplacementRequested,
		"completed_at":          now,
	}
	if err := tx.Model(&entity.RepairWorkOrder{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
		return err
	}
	s.logRepo.LogActivity(ctx, "work_order", order.ID, "", "complete", order.Status, entity.OrderStatusCompleted, "维修完工", ev.OperatorID)
	order.Status = entity.OrderStatusCompleted
	order.QCPassed = &qc
	order.CompletedAt = &now
	return nil
}

func (s *SyncService) applyReturnCreated(ctx context.Context, tx *gorm.DB, ev Event, out *Outcome) error {
	ticket := ev.Ticket
	if ticket.Status != entity.TicketStatusResolved {
		return entity.NewPrecondition(ticket.Status, ticket.ID, "报修单尚未解决，不能创建返还")
	}
	for _, item := range ticket.Items {
		asset, err := s.loadAsset(tx, item.AssetID)
		if err != nil {
			return err
		}
		if asset.Status == entity.AssetStatusScrapped {
			continue
		}
		if err := s.transitAsset(ctx, tx, out, asset,entity.AssetStatusInTransitField, ev.OperatorID); err != nil {
			return err
		}
		out.AssetStatus[asset.ID] = entity.AssetStatusInTransitField
	}
	if err := s.transitTicket(ctx, tx, out, ticket,entity.TicketStatusReturnShipped, ev.OperatorID, nil); err != nil {
		return err
	}
	out.TicketStatus = entity.TicketStatusReturnShipped
	return nil
}

func (s *SyncService) applyPickupConfirmed(ctx context.Context, tx *gorm.DB, ev Event, out *Outcome) error {
	ticket := ev.Ticket
	assetIDs := ev.AssetIDs
	if len(assetIDs) == 0 {
		for _, item := range ticket.Items {
			assetIDs = append(assetIDs, item.AssetID)
		}
	}

	for _, assetID := range assetIDs {
		asset, err := s.loadAsset(tx, assetID)
		if err != nil {
			return err
		}
		switch asset.Status {
		case entity.AssetStatusReadyForPickup:
			// 取件前置条件：报修单已解决或可判定为已解决
			if ticket.Status != entity.TicketStatusResolved {
				resolved, err := s.EvaluateResolution(ctx, tx, ticket)
				if err != nil {
					return err
				}
				if !resolved {
					return entity.NewPrecondition(ticket.Status, ticket.ID, "报修单尚未全部完工，不能确认取件")
				}
			}
			if err := s.transitAsset(ctx, tx, out, asset,entity.AssetStatusOK, ev.OperatorID); err != nil {
				return err
			}
			out.AssetStatus[asset.ID] = entity.AssetStatusOK
		case entity.AssetStatusScrapped:
			// 报废钞箱的取件是销毁确认：旧箱保持scrapped，
			// 替换的新箱由自身的取件流程转向ok
			s.logRepo.LogActivity(ctx, "asset", asset.ID, asset.SerialNumber, "disposal_confirm",
				entity.AssetStatusScrapped, entity.AssetStatusScrapped, "报废钞箱销毁确认", ev.OperatorID)
		default:
			return entity.NewConflict(asset.Status, ticket.ID, "钞箱 %s 当前状态不允许确认取件", asset.SerialNumber)
		}
	}

	// 全部资产归位（ok或scrapped）后关闭报修单
	if s.allAssetsSettled(tx, ticket) {
		if err := s.transitTicket(ctx, tx, out, ticket,entity.TicketStatusClosed, ev.OperatorID, &ev.Now); err != nil {
			return err
		}
		out.TicketStatus = entity.TicketStatusClosed
	}
	return nil
}

func (s *SyncService) applyReturnReceived(ctx context.Context, tx *gorm.DB, ev Event, out *Outcome) error {
	ticket := ev.Ticket
	if ticket.Status != entity.TicketStatusReturnShipped {
		// 已关闭的报修单重放签收属于冲突，不做静默重应用
		return entity.NewConflict(ticket.Status, ticket.ID, "报修单不在返还途中，无法签收")
	}
	for _, item := range ticket.Items {
		asset, err := s.loadAsset(tx, item.AssetID)
		if err != nil {
			return err
		}
		if asset.Status == entity.AssetStatusScrapped {
			continue
		}
		if err := s.transitAsset(ctx, tx, out, asset,entity.AssetStatusOK, ev.OperatorID); err != nil {
			return err
		}
		out.AssetStatus[asset.ID] = entity.AssetStatusOK
	}
	if err := s.transitTicket(ctx, tx, out, ticket,entity.TicketStatusClosed, ev.OperatorID, &ev.Now); err != nil {
		return err
	}
	out.TicketStatus = entity.TicketStatusClosed
	return nil
}

func (s *SyncService) applyTicketDeleted(ctx context.Context, tx *gorm.DB, ev Event, out *Outcome) error {
	ticket := ev.Ticket
	for _, item := range ticket.Items {
		asset, err := s.loadAsset(tx, item.AssetID)
		if err != nil {
			return err
		}
		// 软删除的补偿恢复：任意状态一律还原为ok，不走正向状态机
		if asset.Status != entity.AssetStatusOK {
			if err := tx.Model(&entity.Asset{}).Where("id = ?", asset.ID).
				Update("status", entity.AssetStatusOK).Error; err != nil {
				return err
			}
			s.logRepo.LogActivity(ctx, "asset", asset.ID, asset.SerialNumber, "restore",
				asset.Status, entity.AssetStatusOK, "报修单删除，资产状态还原", ev.OperatorID)
			assetID, from := asset.ID, asset.Status
			out.queueBroadcast(func() { sse.PublishAssetStatus(assetID, from, entity.AssetStatusOK) })
		}
		out.AssetStatus[asset.ID] = entity.AssetStatusOK

		// 级联软删除该资产未终结的维修工单
		if err := tx.Where("asset_id = ?", asset.ID).
			Where("status NOT IN ?", []string{entity.OrderStatusCompleted, entity.OrderStatusScrapped}).
			Delete(&entity.RepairWorkOrder{}).Error; err != nil {
			return err
		}
	}
	return nil
}

// EvaluateResolution 报修单解决判定
// 对每个关联资产取创建时间 >= 报修单创建时间的最新工单（软删除的排除），
// 每个资产必须恰有一张且均已终结才可判定为已解决。
// 同一钞箱可能跨报修单经历多个维修周期，按"存在任意completed工单"
// 判定会产生误报，时间窗比较是本规则的关键
func (s *SyncService) EvaluateResolution(ctx context.Context, tx *gorm.DB, ticket *entity.ServiceTicket) (bool, error) {
	if len(ticket.Items) == 0 {
		return false, nil
	}
	for _, item := range ticket.Items {
		var order entity.RepairWorkOrder
		err := tx.
			Where("asset_id = ?", item.AssetID).
			Where("created_at >= ?", ticket.CreatedAt).
			Order("created_at DESC").
			First(&order).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, nil
			}
			return false, err
		}
		if !entity.IsOrderTerminal(order.Status) {
			return false, nil
		}
		// 替换分支：替换钞箱必须已登记且状态ok
		if order.ReplacementRequested {
			asset, err := s.loadAsset(tx, item.AssetID)
			if err != nil {
				return false, err
			}
			if asset.ReplacedByID == nil {
				return false, nil
			}
			repl, err := s.loadAsset(tx, *asset.ReplacedByID)
			if err != nil {
				return false, err
			}
			if repl.Status != entity.AssetStatusOK {
				return false, nil
			}
		}
	}
	return true, nil
}

// SyncResolution 按判定结果纠偏报修单状态，幂等
// 返回新状态，空串表示无需纠偏。
// 纠偏决策以事务内重读的状态为准，调用方持有的快照可能已被并发流程推进；
// 落库带状态条件，0行命中视为已被他人推进，放弃本次纠偏
func (s *SyncService) SyncResolution(ctx context.Context, tx *gorm.DB, ticket *entity.ServiceTicket, operatorID string, now time.Time, out *Outcome) (string, error) {
	var current entity.ServiceTicket
	if err := tx.Select("status").Where("id = ?", ticket.ID).First(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	ticket.Status = current.Status

	resolved, err := s.EvaluateResolution(ctx, tx, ticket)
	if err != nil {
		return "", err
	}

	switch {
	case resolved && (ticket.Status == entity.TicketStatusReceived ||
		ticket.Status == entity.TicketStatusInProgress ||
		ticket.Status == entity.TicketStatusApprovedOnSite):
		res := tx.Model(&entity.ServiceTicket{}).
			Where("id = ? AND status = ?", ticket.ID, ticket.Status).
			Updates(map[string]interface{}{
				"status":      entity.TicketStatusResolved,
				"resolved_at": now,
			})
		if res.Error != nil {
			return "", res.Error
		}
		if res.RowsAffected == 0 {
			return "", nil
		}
		s.logRepo.LogActivity(ctx, "ticket", ticket.ID, ticket.TicketCode, "status_change",
			ticket.Status, entity.TicketStatusResolved, "全部维修完工，报修单解决", operatorID)
		ticketID, from := ticket.ID, ticket.Status
		out.queueBroadcast(func() { sse.PublishTicketStatus(ticketID, from, entity.TicketStatusResolved) })
		ticket.Status = entity.TicketStatusResolved
		return entity.TicketStatusResolved, nil

	case !resolved && ticket.Status == entity.TicketStatusResolved:
		// 误标为resolved的回退
		res := tx.Model(&entity.ServiceTicket{}).
			Where("id = ? AND status = ?", ticket.ID, entity.TicketStatusResolved).
			Updates(map[string]interface{}{
				"status":      entity.TicketStatusInProgress,
				"resolved_at": nil,
			})
		if res.Error != nil {
			return "", res.Error
		}
		if res.RowsAffected == 0 {
			return "", nil
		}
		s.logRepo.LogActivity(ctx, "ticket", ticket.ID, ticket.TicketCode, "status_change",
			ticket.Status, entity.TicketStatusInProgress, "维修未全部完工，回退解决状态", operatorID)
		ticketID, from := ticket.ID, ticket.Status
		out.queueBroadcast(func() { sse.PublishTicketStatus(ticketID, from, entity.TicketStatusInProgress) })
		ticket.Status = entity.TicketStatusInProgress
		return entity.TicketStatusInProgress, nil
	}
	return "", nil
}

func (s *SyncService) loadAsset(tx *gorm.DB, id string) (*entity.Asset, error) {
	var asset entity.Asset
	if err := tx.Where("id = ?", id).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entity.NewNotFound("钞箱不存在: %s", id)
		}
		return nil, err
	}
	return &asset, nil
}

// transitAsset 资产状态迁移的唯一出口
// SSE推送挂在out上，事务提交后由调用方统一触发，回滚不外泄事件
func (s *SyncService) transitAsset(ctx context.Context, tx *gorm.DB, out *Outcome, asset *entity.Asset, to, operatorID string) error {
	if asset.Status == to {
		return nil
	}
	if !entity.CanTransitAsset(asset.Status, to) {
		return entity.NewPrecondition(asset.Status, asset.ID, "钞箱 %s 不允许 %s → %s", asset.SerialNumber, asset.Status, to)
	}
	if err := tx.Model(&entity.Asset{}).Where("id = ?", asset.ID).Update("status", to).Error; err != nil {
		return err
	}
	s.logRepo.LogActivity(ctx, "asset", asset.ID, asset.SerialNumber, "status_change", asset.Status, to, "", operatorID)
	assetID, from := asset.ID, asset.Status
	out.queueBroadcast(func() { sse.PublishAssetStatus(assetID, from, to) })
	s.logger.Debug("asset status",
		zap.String("asset_id", asset.ID),
		zap.String("from", asset.Status),
		zap.String("to", to))
	asset.Status = to
	return nil
}

// transitTicket 报修单状态迁移的唯一出口
func (s *SyncService) transitTicket(ctx context.Context, tx *gorm.DB, out *Outcome, ticket *entity.ServiceTicket, to, operatorID string, closedAt *time.Time) error {
	if ticket.Status == to {
		return nil
	}
	if !entity.CanTransitTicket(ticket.Status, to) {
		return entity.NewConflict(ticket.Status, ticket.ID, "报修单不允许 %s → %s", ticket.Status, to)
	}
	updates := map[string]interface{}{"status": to}
	if closedAt != nil && to == entity.TicketStatusClosed {
		updates["closed_at"] = *closedAt
	}
	if err := tx.Model(&entity.ServiceTicket{}).Where("id = ?", ticket.ID).Updates(updates).Error; err != nil {
		return err
	}
	s.logRepo.LogActivity(ctx, "ticket", ticket.ID, ticket.TicketCode, "status_change", ticket.Status, to, "", operatorID)
	ticketID, from := ticket.ID, ticket.Status
	out.queueBroadcast(func() { sse.PublishTicketStatus(ticketID, from, to) })
	ticket.Status = to
	return nil
}

// allAssetsSettled 报修单全部资产是否已归位（ok或scrapped）
func (s *SyncService) allAssetsSettled(tx *gorm.DB, ticket *entity.ServiceTicket) bool {
	for _, item := range ticket.Items {
		asset, err := s.loadAsset(tx, item.AssetID)
		if err != nil {
			return false
		}
		if asset.Status != entity.AssetStatusOK && asset.Status != entity.AssetStatusScrapped {
			return false
		}
	}
	return len(ticket.Items) > 0
}
