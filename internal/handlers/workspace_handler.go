package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskhub/internal/models"
	"taskhub/internal/services"
)

type WorkspaceHandler struct {
	service services.WorkspaceService
}

func NewWorkspaceHandler(service services.WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{service: service}
}

type workspaceListResponse struct {
	Workspaces []*models.Workspace `json:"workspaces"`
}

// @Summary      Create workspace
// @Tags         Workspaces
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      models.CreateWorkspaceRequest  true  "Workspace"
// @Success      201   {object}  models.Workspace
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /workspaces [post]
func (h *WorkspaceHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		writeError(c, "", services.ErrUnauthorized)
		return
	}
	var req models.CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	w, err := h.service.Create(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, "", err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// @Summary      List my workspaces
// @Tags         Workspaces
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  workspaceListResponse
// @Failure      401  {object}  errorResponse
// @Router       /workspaces [get]
func (h *WorkspaceHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		writeError(c, "", services.ErrUnauthorized)
		return
	}
	list, err := h.service.ListForUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, workspaceListResponse{Workspaces: list})
}

// @Summary      Get workspace
// @Tags         Workspaces
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Workspace ID"
// @Success      200  {object}  models.Workspace
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /workspaces/{id} [get]
func (h *WorkspaceHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		writeError(c, "", services.ErrUnauthorized)
		return
	}
	w, err := h.service.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// @Summary      Update workspace
// @Description  Owners and admins only
// @Tags         Workspaces
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string                          true  "Workspace ID"
// @Param        body  body      models.UpdateWorkspaceRequest   true  "Fields to change"
// @Success      200   {object}  models.Workspace
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /workspaces/{id} [patch]
func (h *WorkspaceHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		writeError(c, "", services.ErrUnauthorized)
		return
	}
	var req models.UpdateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	w, err := h.service.Update(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		writeError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, w)
}
