package service

import (
	"context"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"github.com/bitfantasy/cams/internal/cams/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AssetService 钞箱资产服务
type AssetService struct {
	assetRepo *repository.AssetRepository
	orderRepo *repository.OrderRepository
	maintRepo *repository.MaintenanceRepository
	logRepo   *repository.ActivityLogRepository
	logger    *zap.Logger
}

func NewAssetService(repos *repository.Repositories, logger *zap.Logger) *AssetService {
	return &AssetService{
		assetRepo: repos.Asset,
		orderRepo: repos.Order,
		maintRepo: repos.Maintenance,
		logRepo:   repos.ActivityLog,
		logger:    logger,
	}
}

// RegisterAssetRequest 登记钞箱请求
type RegisterAssetRequest struct {
	SerialNumber string `json:"serial_number" binding:"required"`
	Model        string `json:"model"`
	BankID       string `json:"bank_id" binding:"required"`
	OperatorID   string `json:"operator_id"`
	Location     string `json:"location"`
	Notes        string `json:"notes"`
}

// Register 登记新钞箱，序列号全局唯一
func (s *AssetService) Register(ctx context.Context, operatorID string, req *RegisterAssetRequest) (*entity.Asset, error) {
	existing, err := s.assetRepo.FindBySerial(ctx, req.SerialNumber)
	if err != nil && err != repository.ErrNotFound {
		return nil, err
	}
	if existing != nil {
		return nil, entity.NewConflict(existing.Status, existing.ID, "序列号已登记: %s", req.SerialNumber)
	}

	asset := &entity.Asset{
		ID:           uuid.New().String()[:32],
		SerialNumber: req.SerialNumber,
		Model:        req.Model,
		Status:       entity.AssetStatusOK,
		BankID:       req.BankID,
		OperatorID:   req.OperatorID,
		Location:     req.Location,
		Notes:        req.Notes,
		CreatedBy:    operatorID,
	}
	if err := s.assetRepo.Create(ctx, asset); err != nil {
		return nil, err
	}

	s.logRepo.LogActivity(ctx, "asset", asset.ID, asset.SerialNumber, "register", "", entity.AssetStatusOK, "登记钞箱", operatorID)
	return asset, nil
}

// Get 查询资产详情
func (s *AssetService) Get(ctx context.Context, id string) (*entity.Asset, error) {
	asset, err := s.assetRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, entity.NewNotFound("钞箱不存在: %s", id)
		}
		return nil, err
	}
	return asset, nil
}

// List 查询资产列表
func (s *AssetService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Asset, int64, error) {
	return s.assetRepo.FindAll(ctx, page, pageSize, filters)
}

// History 查询资产的流转审计记录
func (s *AssetService) History(ctx context.Context, id string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.logRepo.FindByEntity(ctx, "asset", id, page, pageSize)
}

// Delete 物理删除已报废且无未结引用的资产
func (s *AssetService) Delete(ctx context.Context, id, operatorID string) error {
	asset, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if asset.Status != entity.AssetStatusScrapped {
		return entity.NewPrecondition(asset.Status, "", "仅已报废的钞箱允许删除")
	}

	refs, err := s.assetRepo.CountOpenTicketRefs(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return entity.NewPrecondition(asset.Status, "", "钞箱仍被未关闭的报修单引用")
	}
	order, err := s.orderRepo.FindActiveByAssetID(ctx, id)
	if err != nil {
		return err
	}
	if order != nil {
		return entity.NewConflict(order.Status, order.ID, "钞箱仍有进行中的维修工单")
	}
	task, err := s.maintRepo.FindActiveByAssetID(ctx, id)
	if err != nil {
		return err
	}
	if task != nil {
		return entity.NewConflict(task.Status, task.ID, "钞箱仍有进行中的保养任务")
	}

	if err := s.assetRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logRepo.LogActivity(ctx, "asset", id, asset.SerialNumber, "delete", asset.Status, "", "删除已报废钞箱", operatorID)
	return nil
}
