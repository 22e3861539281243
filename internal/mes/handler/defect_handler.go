package handler

import (
	"errors"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// 分配结果的业务错误码
const (
	codeCapacityExceeded = 42201 // 容量不足，未写入
	codeCapacityChanged  = 40901 // 并发消耗导致缺口，已回滚
	codeDefectNoConflict = 40902 // 单号唯一键冲突，可整单重试
)

// DefectHandler 不良分配与流水查询
type DefectHandler struct {
	distribution *service.DistributionService
	defectLogs   *service.DefectLogService
}

func NewDefectHandler(distribution *service.DistributionService, defectLogs *service.DefectLogService) *DefectHandler {
	return &DefectHandler{distribution: distribution, defectLogs: defectLogs}
}

type distributeLogMeta struct {
	Division       string `json:"division"`
	DefectType     string `json:"defect_type"`
	DefectDecision string `json:"defect_decision"` // defect/return
	MoldNo         string `json:"mold_no"`
	ObsCd          string `json:"obs_cd"`
	Creator        string `json:"creator"`
	CreatePC       string `json:"create_pc"`
}

type distributeRequest struct {
	PlantCd    string             `json:"plant_cd" binding:"required"`
	WorkCenter string             `json:"work_center" binding:"required"`
	LineCd     string             `json:"line_cd" binding:"required"`
	MaterialCd string             `json:"material_cd" binding:"required"`
	DefectQty  float64            `json:"defect_qty" binding:"required,gt=0"`
	DefectForm string             `json:"defect_form" binding:"required"`
	DefectDate string             `json:"defect_date" binding:"required"` // yyyy-mm-dd
	MachineCd  string             `json:"machine_cd"`
	Log        *distributeLogMeta `json:"log"`
}

func (r *distributeRequest) toService() (*service.DistributionRequest, error) {
	defectDate, err := time.Parse("2006-01-02", r.DefectDate)
	if err != nil {
		return nil, err
	}
	req := &service.DistributionRequest{
		PlantCd:    r.PlantCd,
		WorkCenter: r.WorkCenter,
		LineCd:     r.LineCd,
		MaterialCd: r.MaterialCd,
		DefectQty:  r.DefectQty,
		DefectForm: r.DefectForm,
		DefectDate: defectDate,
		MachineCd:  r.MachineCd,
	}
	if r.Log != nil {
		req.Log = service.DefectLogMeta{
			Division:       r.Log.Division,
			DefectType:     r.Log.DefectType,
			DefectDecision: r.Log.DefectDecision,
			MoldNo:         r.Log.MoldNo,
			ObsCd:          r.Log.ObsCd,
			Creator:        r.Log.Creator,
			CreatePC:       r.Log.CreatePC,
		}
	}
	return req, nil
}

// Distribute POST /defects/distribute 执行不良数量分配
func (h *DefectHandler) Distribute(c *gin.Context) {
	var body distributeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	req, err := body.toService()
	if err != nil {
		BadRequest(c, "不良日期格式非法，应为 yyyy-mm-dd")
		return
	}

	result, err := h.distribution.Distribute(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			BadRequest(c, err.Error())
		case errors.Is(err, service.ErrDefectNoConflict):
			Error(c, codeDefectNoConflict, "不良单号冲突，请重试整个请求")
		default:
			InternalError(c, "不良分配失败")
		}
		return
	}

	switch result.Status {
	case service.StatusExceeded:
		ErrorWithData(c, codeCapacityExceeded, "可分配数量不足", result)
	case service.StatusChanged:
		ErrorWithData(c, codeCapacityChanged, "可分配数量已被并发占用，请重试", result)
	default:
		Success(c, result)
	}
}

// Simulate POST /defects/simulate 只读预演，不落库
func (h *DefectHandler) Simulate(c *gin.Context) {
	var body distributeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}
	req, err := body.toService()
	if err != nil {
		BadRequest(c, "不良日期格式非法，应为 yyyy-mm-dd")
		return
	}

	result, err := h.distribution.Simulate(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			BadRequest(c, err.Error())
			return
		}
		InternalError(c, "不良分配模拟失败")
		return
	}
	Success(c, result)
}

// List GET /defects 分页查询不良流水
func (h *DefectHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	params := repository.DefectLogListParams{
		PlantCd:    c.Query("plant_cd"),
		WorkCenter: c.Query("work_center"),
		OrderNo:    c.Query("order_no"),
		Page:       page,
		PageSize:   pageSize,
	}
	if from := c.Query("date_from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			params.DateFrom = &t
		}
	}
	if to := c.Query("date_to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			params.DateTo = &t
		}
	}

	items, total, err := h.defectLogs.List(c.Request.Context(), params)
	if err != nil {
		InternalError(c, "查询不良流水失败")
		return
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	Success(c, ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	})
}
