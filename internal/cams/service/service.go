package service

import (
	"github.com/bitfantasy/cams/internal/cams/repository"
	"github.com/bitfantasy/cams/internal/config"
	"github.com/bitfantasy/cams/internal/shared/notify"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Asset        *AssetService
	Ticket       *TicketService
	Repair       *RepairService
	Shipment     *ShipmentService
	Maintenance  *MaintenanceService
	Availability *AvailabilityService
	Sync         *SyncService
	Reconcile    *ReconcileService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, db *gorm.DB, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *Services {
	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, logger)
	}

	syncSvc := NewSyncService(repos.ActivityLog, logger)
	availability := NewAvailabilityService(repos)
	warranty := NewFixedWarrantyCalculator(DefaultWarrantyDays)

	return &Services{
		Asset:        NewAssetService(repos, logger),
		Ticket:       NewTicketService(repos, availability, syncSvc, notifier, db, logger),
		Repair:       NewRepairService(repos, syncSvc, warranty, notifier, db, logger),
		Shipment:     NewShipmentService(repos, syncSvc, notifier, db, logger),
		Maintenance:  NewMaintenanceService(repos, availability, db, logger),
		Availability: availability,
		Sync:         syncSvc,
		Reconcile:    NewReconcileService(repos, syncSvc, availability, db, rdb, logger),
	}
}
