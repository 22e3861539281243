package entity

import "time"

// DefectLog 不良分配流水（append-only，每次成功分配一行）
type DefectLog struct {
	ID       string `json:"id" gorm:"primaryKey;size:32"`
	DefectNo string `json:"defect_no" gorm:"size:20;uniqueIndex;not null"`

	PlantCd    string    `json:"plant_cd" gorm:"size:4;not null;index"`
	DefectForm string    `json:"defect_form" gorm:"size:10;not null"`
	DefectDate time.Time `json:"defect_date" gorm:"type:date;not null;index"`
	WorkCenter string    `json:"work_center" gorm:"size:10;not null;index"`
	LineCd     string    `json:"line_cd" gorm:"size:10;not null"`
	MaterialCd string    `json:"material_cd" gorm:"size:40;not null"`
	OrderNo    string    `json:"order_no" gorm:"size:20;not null;index"`
	DefectQty  float64   `json:"defect_qty" gorm:"type:decimal(12,2);not null"`
	MachineCd  string    `json:"machine_cd" gorm:"size:20"`

	// 描述性字段，原样透传自请求
	Division       string `json:"division" gorm:"size:20"`
	DefectType     string `json:"defect_type" gorm:"size:20"`
	DefectDecision string `json:"defect_decision" gorm:"size:10;not null;default:defect"` // defect/return
	MoldNo         string `json:"mold_no" gorm:"size:20"`
	ObsCd          string `json:"obs_cd" gorm:"size:20"`

	Creator  string    `json:"creator" gorm:"size:32"`
	CreateDt time.Time `json:"create_dt" gorm:"autoCreateTime"`
	CreatePC string    `json:"create_pc" gorm:"size:64"`
}

func (DefectLog) TableName() string {
	return "mes_defect_logs"
}

// 不良判定：决定条件更新累加哪一个消耗列
const (
	DecisionDefect = "defect"
	DecisionReturn = "return"
)

// ConsumedColumn 判定值对应的订单消耗列，未知判定按 defect 处理
func ConsumedColumn(decision string) string {
	if decision == DecisionReturn {
		return ColumnReturnQty
	}
	return ColumnDefectQty
}
