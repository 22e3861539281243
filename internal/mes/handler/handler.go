package handler

import (
	"strconv"

	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// Handlers MES处理器集合
type Handlers struct {
	Defect  *DefectHandler
	RefData *RefDataHandler
}

// NewHandlers 创建MES处理器集合
func NewHandlers(svcs *service.Services) *Handlers {
	return &Handlers{
		Defect:  NewDefectHandler(svcs.Distribution, svcs.DefectLog),
		RefData: NewRefDataHandler(svcs.RefData),
	}
}

// RegisterRoutes 注册全部MES路由
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/defects/distribute", h.Defect.Distribute)
	api.POST("/defects/simulate", h.Defect.Simulate)
	api.GET("/defects", h.Defect.List)

	api.GET("/plants", h.RefData.ListPlants)
	api.GET("/work-centers", h.RefData.ListWorkCenters)
	api.GET("/lines", h.RefData.ListLines)
	api.GET("/materials", h.RefData.ListMaterials)
	api.GET("/molds", h.RefData.ListMolds)
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

// ErrorWithData 业务失败但仍要携带负载（分配预演计划等）
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}
