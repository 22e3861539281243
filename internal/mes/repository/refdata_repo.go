package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// RefDataRepository 基础资料仓库（只读选项数据）
type RefDataRepository struct {
	db *gorm.DB
}

func NewRefDataRepository(db *gorm.DB) *RefDataRepository {
	return &RefDataRepository{db: db}
}

// ListPlants 工厂列表
func (r *RefDataRepository) ListPlants(ctx context.Context) ([]entity.Plant, error) {
	var items []entity.Plant
	err := r.db.WithContext(ctx).
		Where("status = ?", "active").
		Order("plant_cd ASC").
		Find(&items).Error
	return items, err
}

// ListWorkCenters 车间列表
func (r *RefDataRepository) ListWorkCenters(ctx context.Context, plantCd string) ([]entity.WorkCenter, error) {
	var items []entity.WorkCenter
	query := r.db.WithContext(ctx).Where("status = ?", "active")
	if plantCd != "" {
		query = query.Where("plant_cd = ?", plantCd)
	}
	err := query.Order("work_center_cd ASC").Find(&items).Error
	return items, err
}

// ListLines 产线列表
func (r *RefDataRepository) ListLines(ctx context.Context, plantCd, workCenterCd string) ([]entity.ProductionLine, error) {
	var items []entity.ProductionLine
	query := r.db.WithContext(ctx).Where("status = ?", "active")
	if plantCd != "" {
		query = query.Where("plant_cd = ?", plantCd)
	}
	if workCenterCd != "" {
		query = query.Where("work_center_cd = ?", workCenterCd)
	}
	err := query.Order("line_cd ASC").Find(&items).Error
	return items, err
}

// ListMaterials 物料列表
func (r *RefDataRepository) ListMaterials(ctx context.Context, styleCd string) ([]entity.Material, error) {
	var items []entity.Material
	query := r.db.WithContext(ctx).Where("status = ?", "active")
	if styleCd != "" {
		query = query.Where("style_cd = ?", styleCd)
	}
	err := query.Order("material_cd ASC").Find(&items).Error
	return items, err
}

// ListMolds 模具列表
func (r *RefDataRepository) ListMolds(ctx context.Context, plantCd string) ([]entity.Mold, error) {
	var items []entity.Mold
	query := r.db.WithContext(ctx).Where("status = ?", "active")
	if plantCd != "" {
		query = query.Where("plant_cd = ?", plantCd)
	}
	err := query.Order("mold_no ASC").Find(&items).Error
	return items, err
}
