package service

import (
	"context"
	"time"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"github.com/bitfantasy/cams/internal/cams/repository"
	"github.com/bitfantasy/cams/internal/shared/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ShipmentService 物流跟踪服务（送修/返还/取件确认）
type ShipmentService struct {
	shipmentRepo *repository.ShipmentRepository
	ticketRepo   *repository.TicketRepository
	logRepo      *repository.ActivityLogRepository
	sync         *SyncService
	notifier     notify.Notifier
	db           *gorm.DB
	logger       *zap.Logger
}

func NewShipmentService(
	repos *repository.Repositories,
	syncSvc *SyncService,
	notifier notify.Notifier,
	db *gorm.DB,
	logger *zap.Logger,
) *ShipmentService {
	return &ShipmentService{
		shipmentRepo: repos.Shipment,
		ticketRepo:   repos.Ticket,
		logRepo:      repos.ActivityLog,
		sync:         syncSvc,
		notifier:     notifier,
		db:           db,
		logger:       logger,
	}
}

func (s *ShipmentService) loadTicket(ctx context.Context, ticketID string) (*entity.ServiceTicket, error) {
	ticket, err := s.ticketRepo.FindByID(ctx, ticketID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, entity.NewNotFound("报修单不存在: %s", ticketID)
		}
		return nil, err
	}
	return ticket, nil
}

// CreateDeliveryRequest 创建送修请求
type CreateDeliveryRequest struct {
	Method     string `json:"method" binding:"required"` // courier/self
	Courier    string `json:"courier"`
	TrackingNo string `json:"tracking_no"`
	SenderName string `json:"sender_name"`
	Notes      string `json:"notes"`
}

// CreateDelivery 为已有报修单创建送修记录
// 资产bad→in_transit_to_center、报修单→in_delivery与记录落库同一事务
func (s *ShipmentService) CreateDelivery(ctx context.Context, ticketID, operatorID string, req *CreateDeliveryRequest) (*entity.DeliveryRecord, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	existing, err := s.shipmentRepo.FindDeliveryByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, entity.NewConflict(ticket.Status, existing.ID, "报修单已有送修记录")
	}

	now := time.Now()
	record := &entity.DeliveryRecord{
		ID:         uuid.New().String()[:32],
		TicketID:   ticketID,
		Method:     req.Method,
		Courier:    req.Courier,
		TrackingNo: req.TrackingNo,
		SenderName: req.SenderName,
		ShippedAt:  &now,
		CreatedBy:  operatorID,
		Notes:      req.Notes,
	}

	var outcome *Outcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		outcome, err = s.sync.Apply(ctx, tx, Event{
			Kind:       EventDeliveryCreated,
			Ticket:     ticket,
			OperatorID: operatorID,
			Now:        now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	outcome.Broadcast()

	s.logRepo.LogActivity(ctx, "delivery", record.ID, "", "create", "", "", "创建送修记录", operatorID)
	return record, nil
}

// ConfirmDeliveryReceived 维修中心签收送修
func (s *ShipmentService) ConfirmDeliveryReceived(ctx context.Context, ticketID, operatorID string) (*entity.DeliveryRecord, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	record, err := s.shipmentRepo.FindDeliveryByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, entity.NewNotFound("报修单无送修记录: %s", ticketID)
	}
	if record.ReceivedAtCenter != nil {
		return nil, entity.NewConflict(ticket.Status, record.ID, "送修已签收，不能重复签收")
	}

	now := time.Now()
	var outcome *Outcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.DeliveryRecord{}).Where("id = ?", record.ID).
			Update("received_at_center", now).Error; err != nil {
			return err
		}
		outcome, err = s.sync.Apply(ctx, tx, Event{
			Kind:       EventDeliveryReceived,
			Ticket:     ticket,
			OperatorID: operatorID,
			Now:        now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	outcome.Broadcast()

	record.ReceivedAtCenter = &now
	s.logRepo.LogActivity(ctx, "delivery", record.ID, "", "receive", "", "", "维修中心签收", operatorID)
	return record, nil
}

// CreateReturnRequest 创建返还请求
type CreateReturnRequest struct {
	Method       string `json:"method" binding:"required"` // courier/self
	Courier      string `json:"courier"`
	TrackingNo   string `json:"tracking_no"`
	ReceiverName string `json:"receiver_name"`
	Notes        string `json:"notes"`
}

// CreateReturn 创建返还记录（仅限已解决的报修单）
func (s *ShipmentService) CreateReturn(ctx context.Context, ticketID, operatorID string, req *CreateReturnRequest) (*entity.ReturnRecord, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	existing, err := s.shipmentRepo.FindReturnByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, entity.NewConflict(ticket.Status, existing.ID, "报修单已有返还记录")
	}

	now := time.Now()
	record := &entity.ReturnRecord{
		ID:           uuid.New().String()[:32],
		TicketID:     ticketID,
		Method:       req.Method,
		Courier:      req.Courier,
		TrackingNo:   req.TrackingNo,
		ReceiverName: req.ReceiverName,
		ShippedAt:    &now,
		CreatedBy:    operatorID,
		Notes:        req.Notes,
	}

	var outcome *Outcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		outcome, err = s.sync.Apply(ctx, tx, Event{
			Kind:       EventReturnCreated,
			Ticket:     ticket,
			OperatorID: operatorID,
			Now:        now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	outcome.Broadcast()

	s.logRepo.LogActivity(ctx, "return", record.ID, "", "create", "", "", "创建返还记录", operatorID)
	return record, nil
}

// ConfirmReturnReceived 网点签收返还，报修单关闭
// 对已关闭报修单的重放签收返回冲突，不做静默重应用
func (s *ShipmentService) ConfirmReturnReceived(ctx context.Context, ticketID, operatorID string) (*entity.ReturnRecord, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	record, err := s.shipmentRepo.FindReturnByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, entity.NewNotFound("报修单无返还记录: %s", ticketID)
	}
	if record.ReceivedInField != nil {
		return nil, entity.NewConflict(ticket.Status, record.ID, "返还已签收，不能重复签收")
	}

	now := time.Now()
	var outcome *Outcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.ReturnRecord{}).Where("id = ?", record.ID).
			Update("received_in_field", now).Error; err != nil {
			return err
		}
		outcome, err = s.sync.Apply(ctx, tx, Event{
			Kind:       EventReturnReceived,
			Ticket:     ticket,
			OperatorID: operatorID,
			Now:        now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	outcome.Broadcast()

	record.ReceivedInField = &now
	s.logRepo.LogActivity(ctx, "return", record.ID, "", "receive", "", "", "网点签收返还", operatorID)
	s.notifier.Publish(notify.LifecycleEvent{
		Kind:     "ticket_closed",
		TicketID: ticketID,
		Status:   entity.TicketStatusClosed,
	})
	return record, nil
}

// ConfirmPickupRequest 取件确认请求
type ConfirmPickupRequest struct {
	AssetIDs []string `json:"asset_ids"` // 空表示报修单全部资产
}

// ConfirmPickup 运维商现场取件确认
// ready_for_pickup的资产转ok；报废且已有替换登记的资产视为销毁确认；
// 报修单未标记resolved时先做可判定解决的纠偏
func (s *ShipmentService) ConfirmPickup(ctx context.Context, ticketID, operatorID string, req *ConfirmPickupRequest) (*entity.ServiceTicket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	corrections := &Outcome{}
	var outcome *Outcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 可判定为已解决但状态滞后时先纠偏，再做取件
		if ticket.Status != entity.TicketStatusResolved {
			if _, err := s.sync.SyncResolution(ctx, tx, ticket, operatorID, now, corrections); err != nil {
				return err
			}
		}
		outcome, err = s.sync.Apply(ctx, tx, Event{
			Kind:       EventPickupConfirmed,
			Ticket:     ticket,
			AssetIDs:   req.AssetIDs,
			OperatorID: operatorID,
			Now:        now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	corrections.Broadcast()
	outcome.Broadcast()

	s.logRepo.LogActivity(ctx, "ticket", ticket.ID, ticket.TicketCode, "pickup_confirm", "", "", "取件确认", operatorID)
	return s.ticketRepo.FindByID(ctx, ticketID)
}
