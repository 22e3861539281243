package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// RefDataHandler 基础资料选项接口
type RefDataHandler struct {
	refData *service.RefDataService
}

func NewRefDataHandler(refData *service.RefDataService) *RefDataHandler {
	return &RefDataHandler{refData: refData}
}

// ListPlants GET /plants
func (h *RefDataHandler) ListPlants(c *gin.Context) {
	items, err := h.refData.ListPlants(c.Request.Context())
	if err != nil {
		InternalError(c, "查询工厂列表失败")
		return
	}
	Success(c, items)
}

// ListWorkCenters GET /work-centers
func (h *RefDataHandler) ListWorkCenters(c *gin.Context) {
	items, err := h.refData.ListWorkCenters(c.Request.Context(), c.Query("plant_cd"))
	if err != nil {
		InternalError(c, "查询车间列表失败")
		return
	}
	Success(c, items)
}

// ListLines GET /lines
func (h *RefDataHandler) ListLines(c *gin.Context) {
	items, err := h.refData.ListLines(c.Request.Context(), c.Query("plant_cd"), c.Query("work_center_cd"))
	if err != nil {
		InternalError(c, "查询产线列表失败")
		return
	}
	Success(c, items)
}

// ListMaterials GET /materials
func (h *RefDataHandler) ListMaterials(c *gin.Context) {
	items, err := h.refData.ListMaterials(c.Request.Context(), c.Query("style_cd"))
	if err != nil {
		InternalError(c, "查询物料列表失败")
		return
	}
	Success(c, items)
}

// ListMolds GET /molds
func (h *RefDataHandler) ListMolds(c *gin.Context) {
	items, err := h.refData.ListMolds(c.Request.Context(), c.Query("plant_cd"))
	if err != nil {
		InternalError(c, "查询模具列表失败")
		return
	}
	Success(c, items)
}
