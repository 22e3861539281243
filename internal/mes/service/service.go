package service

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services MES服务集合
type Services struct {
	Distribution *DistributionService
	DefectLog    *DefectLogService
	RefData      *RefDataService
}

// NewServices 创建MES服务集合
func NewServices(repos *repository.Repositories, db *gorm.DB, rdb *redis.Client, logger *zap.Logger) *Services {
	return &Services{
		Distribution: NewDistributionService(repos.Order, repos.DefectLog, db, logger),
		DefectLog:    NewDefectLogService(repos.DefectLog),
		RefData:      NewRefDataService(repos.RefData, rdb, logger),
	}
}

// DefectLogService 不良流水查询服务
type DefectLogService struct {
	repo *repository.DefectLogRepository
}

func NewDefectLogService(repo *repository.DefectLogRepository) *DefectLogService {
	return &DefectLogService{repo: repo}
}

// List 分页查询不良流水
func (s *DefectLogService) List(ctx context.Context, params repository.DefectLogListParams) ([]entity.DefectLog, int64, error) {
	return s.repo.FindAll(ctx, params)
}
