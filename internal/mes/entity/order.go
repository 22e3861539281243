package entity

import "time"

// ProductionOrder 生产订单（来自排产系统，本服务只累加消耗列）
type ProductionOrder struct {
	PlantCd    string `json:"plant_cd" gorm:"primaryKey;size:4;column:plant_cd"`
	OrderNo    string `json:"order_no" gorm:"primaryKey;size:20;column:order_no"`
	WorkCenter string `json:"work_center" gorm:"size:10;not null;index:idx_orders_filter,priority:1"`
	LineCd     string `json:"line_cd" gorm:"size:10;not null;index:idx_orders_filter,priority:2"`
	MaterialCd string `json:"material_cd" gorm:"size:40;not null;index:idx_orders_filter,priority:3"`
	StyleCd    string `json:"style_cd" gorm:"size:20"`
	SizeCd     string `json:"size_cd" gorm:"size:10"`
	MoldNo     string `json:"mold_no" gorm:"size:20"`

	// 数量列：remaining = order - good - defect - return - labtest
	OrderQty   float64 `json:"order_qty" gorm:"type:decimal(12,2);not null;default:0"`
	GoodQty    float64 `json:"good_qty" gorm:"type:decimal(12,2);not null;default:0"`
	DefectQty  float64 `json:"defect_qty" gorm:"type:decimal(12,2);not null;default:0"`
	ReturnQty  float64 `json:"return_qty" gorm:"type:decimal(12,2);not null;default:0"`
	LabtestQty float64 `json:"labtest_qty" gorm:"type:decimal(12,2);not null;default:0"`

	OrderDate *time.Time `json:"order_date"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (ProductionOrder) TableName() string {
	return "mes_production_orders"
}

// Remaining 订单剩余可分配数量，不会返回有意义的业务负数（调用方跳过<=0）
func (o *ProductionOrder) Remaining() float64 {
	return o.OrderQty - o.GoodQty - o.DefectQty - o.ReturnQty - o.LabtestQty
}

// 消耗列列名（条件更新的目标列只能取这两个值）
const (
	ColumnDefectQty = "defect_qty"
	ColumnReturnQty = "return_qty"
)
