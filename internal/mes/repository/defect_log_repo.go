package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// DefectLogRepository 不良流水仓库
type DefectLogRepository struct {
	db *gorm.DB
}

func NewDefectLogRepository(db *gorm.DB) *DefectLogRepository {
	return &DefectLogRepository{db: db}
}

// NextDefectNo 生成当日顺序号 DF + yyyymmdd + 4位序号。
// 生成和插入之间没有原子性，真正的唯一性由 defect_no 唯一索引兜底，
// 插入撞唯一键时由调用方映射为冲突错误。
func (r *DefectLogRepository) NextDefectNo(ctx context.Context, tx *gorm.DB, defectDate time.Time) (string, error) {
	datePart := defectDate.Format("20060102")
	prefix := "DF" + datePart + "-"

	var maxNo string
	err := tx.WithContext(ctx).
		Model(&entity.DefectLog{}).
		Select("COALESCE(MAX(defect_no), '')").
		Where("defect_no LIKE ?", prefix+"%").
		Scan(&maxNo).Error
	if err != nil {
		return "", fmt.Errorf("查询不良单号失败: %w", err)
	}

	var seq int
	if maxNo != "" {
		fmt.Sscanf(maxNo, "DF"+datePart+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("%s%04d", prefix, seq), nil
}

// Create 写入一条不良流水
func (r *DefectLogRepository) Create(ctx context.Context, tx *gorm.DB, log *entity.DefectLog) error {
	return tx.WithContext(ctx).Create(log).Error
}

// DefectLogListParams 不良流水查询条件
type DefectLogListParams struct {
	PlantCd    string
	WorkCenter string
	OrderNo    string
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	PageSize   int
}

// FindAll 分页查询不良流水
func (r *DefectLogRepository) FindAll(ctx context.Context, params DefectLogListParams) ([]entity.DefectLog, int64, error) {
	var items []entity.DefectLog
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.DefectLog{})

	if params.PlantCd != "" {
		query = query.Where("plant_cd = ?", params.PlantCd)
	}
	if params.WorkCenter != "" {
		query = query.Where("work_center = ?", params.WorkCenter)
	}
	if params.OrderNo != "" {
		query = query.Where("order_no = ?", params.OrderNo)
	}
	if params.DateFrom != nil {
		query = query.Where("defect_date >= ?", params.DateFrom)
	}
	if params.DateTo != nil {
		query = query.Where("defect_date <= ?", params.DateTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (params.Page - 1) * params.PageSize
	err := query.
		Order("create_dt DESC").
		Offset(offset).
		Limit(params.PageSize).
		Find(&items).Error

	return items, total, err
}
