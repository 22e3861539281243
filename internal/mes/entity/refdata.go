package entity

import "time"

// 基础资料：工厂/车间/产线/物料/模具，只读选项数据

// Plant 工厂
type Plant struct {
	PlantCd   string    `json:"plant_cd" gorm:"primaryKey;size:4"`
	PlantName string    `json:"plant_name" gorm:"size:100;not null"`
	Status    string    `json:"status" gorm:"size:20;default:active"`
	CreatedAt time.Time `json:"created_at"`
}

func (Plant) TableName() string { return "mes_plants" }

// WorkCenter 车间/工作中心
type WorkCenter struct {
	PlantCd        string    `json:"plant_cd" gorm:"primaryKey;size:4"`
	WorkCenterCd   string    `json:"work_center_cd" gorm:"primaryKey;size:10"`
	WorkCenterName string    `json:"work_center_name" gorm:"size:100;not null"`
	Status         string    `json:"status" gorm:"size:20;default:active"`
	CreatedAt      time.Time `json:"created_at"`
}

func (WorkCenter) TableName() string { return "mes_work_centers" }

// ProductionLine 产线
type ProductionLine struct {
	PlantCd      string    `json:"plant_cd" gorm:"primaryKey;size:4"`
	LineCd       string    `json:"line_cd" gorm:"primaryKey;size:10"`
	LineName     string    `json:"line_name" gorm:"size:100;not null"`
	WorkCenterCd string    `json:"work_center_cd" gorm:"size:10;index"`
	Status       string    `json:"status" gorm:"size:20;default:active"`
	CreatedAt    time.Time `json:"created_at"`
}

func (ProductionLine) TableName() string { return "mes_production_lines" }

// Material 物料
type Material struct {
	MaterialCd   string    `json:"material_cd" gorm:"primaryKey;size:40"`
	MaterialName string    `json:"material_name" gorm:"size:200;not null"`
	StyleCd      string    `json:"style_cd" gorm:"size:20;index"`
	SizeCd       string    `json:"size_cd" gorm:"size:10"`
	Unit         string    `json:"unit" gorm:"size:20;default:prs"`
	Status       string    `json:"status" gorm:"size:20;default:active"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Material) TableName() string { return "mes_materials" }

// Mold 模具
type Mold struct {
	MoldNo    string    `json:"mold_no" gorm:"primaryKey;size:20"`
	MoldName  string    `json:"mold_name" gorm:"size:100"`
	PlantCd   string    `json:"plant_cd" gorm:"size:4;index"`
	SizeCd    string    `json:"size_cd" gorm:"size:10"`
	Status    string    `json:"status" gorm:"size:20;default:active"`
	CreatedAt time.Time `json:"created_at"`
}

func (Mold) TableName() string { return "mes_molds" }
