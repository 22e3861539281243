package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// OrderRepository 生产订单仓库。分配路径上的方法都显式接收事务句柄，
// 订单行只允许走 ApplyAllocation 的条件更新，不提供盲写接口。
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CandidateFilter 候选订单过滤条件
type CandidateFilter struct {
	PlantCd    string
	WorkCenter string
	LineCd     string
	MaterialCd string
}

// Candidates 按 order_no 升序返回一页候选订单。排序键是主键列，
// 不随分配更新变化，同一过滤条件下模拟和提交两轮翻页顺序一致。
func (r *OrderRepository) Candidates(ctx context.Context, tx *gorm.DB, f CandidateFilter, limit, offset int) ([]entity.ProductionOrder, error) {
	var orders []entity.ProductionOrder
	err := tx.WithContext(ctx).
		Where("plant_cd = ? AND work_center = ? AND line_cd = ? AND material_cd = ?",
			f.PlantCd, f.WorkCenter, f.LineCd, f.MaterialCd).
		Order("order_no ASC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("查询候选订单失败: %w", err)
	}
	return orders, nil
}

// Get 按主键重读订单（条件更新落空后取新快照用）
func (r *OrderRepository) Get(ctx context.Context, tx *gorm.DB, plantCd, orderNo string) (*entity.ProductionOrder, error) {
	var order entity.ProductionOrder
	err := tx.WithContext(ctx).
		Where("plant_cd = ? AND order_no = ?", plantCd, orderNo).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// ApplyAllocation 条件更新：仅当四个消耗列仍等于快照值时，给目标列累加 qty。
// 返回 false 表示行已被并发修改（影响 0 行），由调用方决定重读重试还是跳过。
func (r *OrderRepository) ApplyAllocation(ctx context.Context, tx *gorm.DB, snapshot *entity.ProductionOrder, column string, qty float64) (bool, error) {
	if column != entity.ColumnDefectQty && column != entity.ColumnReturnQty {
		return false, fmt.Errorf("不支持的消耗列: %s", column)
	}

	res := tx.WithContext(ctx).
		Model(&entity.ProductionOrder{}).
		Where("plant_cd = ? AND order_no = ?", snapshot.PlantCd, snapshot.OrderNo).
		Where("good_qty = ? AND defect_qty = ? AND return_qty = ? AND labtest_qty = ?",
			snapshot.GoodQty, snapshot.DefectQty, snapshot.ReturnQty, snapshot.LabtestQty).
		Update(column, gorm.Expr(column+" + ?", qty))
	if res.Error != nil {
		return false, fmt.Errorf("更新订单消耗列失败: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Create 创建订单（测试与数据初始化用，分配引擎不会新建订单）
func (r *OrderRepository) Create(ctx context.Context, order *entity.ProductionOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}
