package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const refDataCacheTTL = 5 * time.Minute

// RefDataService 基础资料查询服务。redis 做 cache-aside，
// 缓存不可用时直接回源数据库，只记日志不报错。
type RefDataService struct {
	repo   *repository.RefDataRepository
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRefDataService(repo *repository.RefDataRepository, rdb *redis.Client, logger *zap.Logger) *RefDataService {
	return &RefDataService{repo: repo, rdb: rdb, logger: logger}
}

// ListPlants 工厂选项
func (s *RefDataService) ListPlants(ctx context.Context) ([]entity.Plant, error) {
	var items []entity.Plant
	err := cachedList(ctx, s, "mes:ref:plants", &items, func() ([]entity.Plant, error) {
		return s.repo.ListPlants(ctx)
	})
	return items, err
}

// ListWorkCenters 车间选项
func (s *RefDataService) ListWorkCenters(ctx context.Context, plantCd string) ([]entity.WorkCenter, error) {
	var items []entity.WorkCenter
	key := fmt.Sprintf("mes:ref:work_centers:%s", plantCd)
	err := cachedList(ctx, s, key, &items, func() ([]entity.WorkCenter, error) {
		return s.repo.ListWorkCenters(ctx, plantCd)
	})
	return items, err
}

// ListLines 产线选项
func (s *RefDataService) ListLines(ctx context.Context, plantCd, workCenterCd string) ([]entity.ProductionLine, error) {
	var items []entity.ProductionLine
	key := fmt.Sprintf("mes:ref:lines:%s:%s", plantCd, workCenterCd)
	err := cachedList(ctx, s, key, &items, func() ([]entity.ProductionLine, error) {
		return s.repo.ListLines(ctx, plantCd, workCenterCd)
	})
	return items, err
}

// ListMaterials 物料选项
func (s *RefDataService) ListMaterials(ctx context.Context, styleCd string) ([]entity.Material, error) {
	var items []entity.Material
	key := fmt.Sprintf("mes:ref:materials:%s", styleCd)
	err := cachedList(ctx, s, key, &items, func() ([]entity.Material, error) {
		return s.repo.ListMaterials(ctx, styleCd)
	})
	return items, err
}

// ListMolds 模具选项
func (s *RefDataService) ListMolds(ctx context.Context, plantCd string) ([]entity.Mold, error) {
	var items []entity.Mold
	key := fmt.Sprintf("mes:ref:molds:%s", plantCd)
	err := cachedList(ctx, s, key, &items, func() ([]entity.Mold, error) {
		return s.repo.ListMolds(ctx, plantCd)
	})
	return items, err
}

// cachedList 先查 redis，未命中回源并回填。rdb 为 nil 时纯走数据库。
func cachedList[T any](ctx context.Context, s *RefDataService, key string, out *[]T, load func() ([]T, error)) error {
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, key).Result()
		if err == nil {
			if jsonErr := json.Unmarshal([]byte(raw), out); jsonErr == nil {
				return nil
			}
		} else if err != redis.Nil {
			s.logger.Warn("基础资料缓存读取失败", zap.String("key", key), zap.Error(err))
		}
	}

	items, err := load()
	if err != nil {
		return err
	}
	*out = items

	if s.rdb != nil {
		if raw, err := json.Marshal(items); err == nil {
			if err := s.rdb.Set(ctx, key, raw, refDataCacheTTL).Err(); err != nil {
				s.logger.Warn("基础资料缓存写入失败", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return nil
}
