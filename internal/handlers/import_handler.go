package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/dshomebg/dshome-docker-sub001/internal/mapping"
	"github.com/dshomebg/dshome-docker-sub001/internal/middleware"
	"github.com/dshomebg/dshome-docker-sub001/internal/models"
	"github.com/dshomebg/dshome-docker-sub001/internal/services"
)

// ImportService is the part of services.ImportService the HTTP layer uses
type ImportService interface {
	Upload(ctx context.Context, tenantID, fileName string, size int64, r io.Reader) (*services.SessionView, error)
	Reupload(ctx context.Context, tenantID, id, fileName string, size int64, r io.Reader) (*services.SessionView, error)
	GetSession(ctx context.Context, tenantID, id string) (*services.SessionView, error)
	SetMapping(ctx context.Context, tenantID, id, header, target string) (*services.SessionView, error)
	ReplaceMapping(ctx context.Context, tenantID, id string, raw map[string]string) (*services.SessionView, error)
	LoadTemplate(ctx context.Context, tenantID, id, templateID string) (*services.SessionView, error)
	SaveTemplate(ctx context.Context, tenantID, id, name string) (*mapping.Template, error)
	UpdateTemplate(ctx context.Context, tenantID, id, templateID, name string) (*mapping.Template, error)
	Validate(ctx context.Context, tenantID, id string) (mapping.Validation, error)
	Confirm(ctx context.Context, tenantID, id string) (*services.SessionView, error)
	Back(ctx context.Context, tenantID, id string) (*services.SessionView, error)
	Execute(ctx context.Context, tenantID, id string) (*services.SessionView, error)
	Cancel(ctx context.Context, tenantID, id string) error
	Reset(ctx context.Context, tenantID, id string) (*services.SessionView, error)
	Targets(ctx context.Context, tenantID string) ([]services.TargetOption, error)
	WriteSample(ctx context.Context, tenantID string, w io.Writer) error

	ListTemplates(ctx context.Context, tenantID string) ([]mapping.Template, error)
	GetTemplate(ctx context.Context, tenantID, id string) (*mapping.Template, error)
	CreateTemplate(ctx context.Context, tenantID, name string, raw map[string]string) (*mapping.Template, error)
	PutTemplate(ctx context.Context, tenantID, id, name string, raw map[string]string) (*mapping.Template, error)
	DeleteTemplate(ctx context.Context, tenantID, id string) error
}

type ImportHandler struct {
	service ImportService
	logger  *logrus.Entry
}

func NewImportHandler(service ImportService, logger *logrus.Logger) *ImportHandler {
	return &ImportHandler{
		service: service,
		logger:  logger.WithField("component", "import_handler"),
	}
}

// RegisterRoutes mounts the import wizard and template routes on api
func (h *ImportHandler) RegisterRoutes(api *gin.RouterGroup) {
	imports := api.Group("/imports")
	{
		imports.POST("", h.Upload)
		imports.GET("/targets", h.Targets)
		imports.GET("/sample", h.Sample)
		imports.GET("/:id", h.GetSession)
		imports.POST("/:id/upload", h.Reupload)
		imports.PUT("/:id/mapping", h.ReplaceMapping)
		imports.PATCH("/:id/mapping", h.SetMapping)
		imports.POST("/:id/template/load", h.LoadTemplate)
		imports.POST("/:id/template/save", h.SaveTemplate)
		imports.PUT("/:id/template/:templateId", h.UpdateTemplate)
		imports.GET("/:id/validation", h.Validate)
		imports.POST("/:id/confirm", h.Confirm)
		imports.POST("/:id/back", h.Back)
		imports.POST("/:id/execute", h.Execute)
		imports.POST("/:id/cancel", h.Cancel)
		imports.POST("/:id/reset", h.Reset)
	}

	templates := api.Group("/mapping-templates")
	{
		templates.GET("", h.ListTemplates)
		templates.POST("", h.CreateTemplate)
		templates.GET("/:id", h.GetTemplate)
		templates.PUT("/:id", h.PutTemplate)
		templates.DELETE("/:id", h.DeleteTemplate)
	}
}

func (h *ImportHandler) ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, models.SuccessResponse{Success: true, Data: data})
}

// Upload handles POST /imports with a multipart "file" field
func (h *ImportHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("FILE_REQUIRED", "file is required"))
		return
	}
	src, err := file.Open()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer src.Close()

	view, err := h.service.Upload(c.Request.Context(), middleware.GetTenantID(c), file.Filename, file.Size, src)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.ok(c, http.StatusCreated, view)
}

// Reupload handles POST /imports/:id/upload for a session in the upload step
func (h *ImportHandler) Reupload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("FILE_REQUIRED", "file is required"))
		return
	}
	src, err := file.Open()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer src.Close()

	view, err := h.service.Reupload(c.Request.Context(), middleware.GetTenantID(c), c.Param("id"), file.Filename, file.Size, src)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.ok(c, http.StatusOK, view)
}

func (h *ImportHandler) GetSession(c *gin.Context) {
	view, err := h.service.GetSession(c.Request.Context(), middleware.GetTenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.ok(c, http.StatusOK, view)
}

type replaceMappingRequest struct {
	Mapping map[string]string `json:"mapping" binding:"required"`
}

func (h *ImportHandler) ReplaceMapping(c *gin.Context) {
	var req replaceMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	view, err := h.service.ReplaceMapping(c.Request.Context(), middleware.GetTenantID(c), c.Param("id"), req.Mapping)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.ok(c, http.StatusOK, view)
}

type setMappingRequest struct {
	Header string `json:"header" binding:"required"`
	Target string `json:"target"`
}

func (h *ImportHandler) SetMapping(c *gin.Context) {
	var req setMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	view, err := h.service.SetMapping(c.Request.Context(), middleware.GetTenantID(c), c.Param("id"), req.Header, req.Target)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.ok(c, http.StatusOK, view)
}

type loadTemplateRequest struct {
	TemplateID string `json:"templateId" binding:"required"`
}

func (h *ImportHandler) LoadTemplate(c *gin.Context) {
	var req loadTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	view, err := h.service.LoadTemplate(c.Request.Context(), middleware.GetTenantID(c), c.Param("id"), req.TemplateID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.ok(c, http.StatusOK, view)
}

type templateNameRequest struct {
	Name string `json:"name"`
}

func (h *ImportHandler) SaveTemplate(c *gin.Context) {
	var req templateNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	t, err := h.service.SaveTemplate(c.Request.Context(), middleware.GetTenantID(c), c.Param("id"), req.Name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.ok(c, http.StatusCreated, t)
}

func (h *ImportHandler) UpdateTemplate(c *gin.Context) {
	var req templateNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	t, err := h.service.UpdateTemplate(c.Request.Context(), middleware.GetTenantID(c), c.Param("id"), c.Param("templateId"), req.Name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.ok(c, http.StatusOK, t)
}

func (h *ImportHandler) Validate(c *gin.Context) {
	v, err := h.service.Validate(c.Request.Context(), middleware.GetTenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.ok(c, http.StatusOK, v)
}

// stepHandler wraps the body-less step transitions
func (h *ImportHandler) stepHandler(status int, step func(ctx context.Context, tenantID, id string) (*services.SessionView, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := step(c.Request.Context(), middleware.GetTenantID(c), c.Param("id"))
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		h.ok(c, status, view)
	}
}

func (h *ImportHandler) Confirm(c *gin.Context) {
	h.stepHandler(http.StatusOK, h.service.Confirm)(c)
}

func (h *ImportHandler) Back(c *gin.Context) {
	h.stepHandler(http.StatusOK, h.service.Back)(c)
}

// Execute starts the batch; the result is polled with GET /imports/:id
func (h *ImportHandler) Execute(c *gin.Context) {
	h.stepHandler(http.StatusAccepted, h.service.Execute)(c)
}

func (h *ImportHandler) Reset(c *gin.Context) {
	h.stepHandler(http.StatusOK, h.service.Reset)(c)
}

func (h *ImportHandler) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), middleware.GetTenantID(c), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	message := "cancellation requested"
	c.JSON(http.StatusAccepted, models.SuccessResponse{Success: true, Message: &message})
}

func (h *ImportHandler) Targets(c *gin.Context) {
	targets, err := h.service.Targets(c.Request.Context(), middleware.GetTenantID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.ok(c, http.StatusOK, targets)
}

// Sample streams the sample workbook as an attachment
func (h *ImportHandler) Sample(c *gin.Context) {
	buf := &bytes.Buffer{}
	if err := h.service.WriteSample(c.Request.Context(), middleware.GetTenantID(c), buf); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="price_inventory_import.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *ImportHandler) ListTemplates(c *gin.Context) {
	templates, err := h.service.ListTemplates(c.Request.Context(), middleware.GetTenantID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.ok(c, http.StatusOK, templates)
}

func (h *ImportHandler) GetTemplate(c *gin.Context) {
	t, err := h.service.GetTemplate(c.Request.Context(), middleware.GetTenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.ok(c, http.StatusOK, t)
}

type templateRequest struct {
	Name          string            `json:"name" binding:"required"`
	ColumnMapping map[string]string `json:"columnMapping" binding:"required"`
}

func (h *ImportHandler) CreateTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	t, err := h.service.CreateTemplate(c.Request.Context(), middleware.GetTenantID(c), req.Name, req.ColumnMapping)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.ok(c, http.StatusCreated, t)
}

func (h *ImportHandler) PutTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	t, err := h.service.PutTemplate(c.Request.Context(), middleware.GetTenantID(c), c.Param("id"), req.Name, req.ColumnMapping)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.ok(c, http.StatusOK, t)
}

func (h *ImportHandler) DeleteTemplate(c *gin.Context) {
	if err := h.service.DeleteTemplate(c.Request.Context(), middleware.GetTenantID(c), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
