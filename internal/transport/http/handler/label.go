package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"recipebox/internal/app"
	"recipebox/internal/transport/http/middleware"
	"recipebox/internal/transport/http/response"
)

type LabelHandler struct {
	labels *app.LabelService
}

type AddLabelRequest struct {
	Title    string `json:"title" binding:"required,max=128"`
	RecipeID uint   `json:"recipe_id" binding:"required"`
}

type RenameLabelRequest struct {
	Title string `json:"title" binding:"required,max=128"`
}

func NewLabelHandler(labels *app.LabelService) *LabelHandler {
	return &LabelHandler{labels: labels}
}

func (h *LabelHandler) Add(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req AddLabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	label, err := h.labels.Add(c.Request.Context(), app.AddLabelInput{
		AccountID: userID,
		Title:     req.Title,
		RecipeID:  req.RecipeID,
	})
	if err != nil {
		writeLabelError(c, err)
		return
	}
	response.OK(c, label)
}

func (h *LabelHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	labels, err := h.labels.List(c.Request.Context(), userID)
	if err != nil {
		writeLabelError(c, err)
		return
	}
	response.OK(c, labels)
}

func (h *LabelHandler) Rename(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	labelID, ok := parseID(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid label id")
		return
	}
	var req RenameLabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	label, err := h.labels.Rename(c.Request.Context(), userID, labelID, req.Title)
	if err != nil {
		writeLabelError(c, err)
		return
	}
	response.OK(c, label)
}

func (h *LabelHandler) RemoveRecipe(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	labelID, okLabel := parseQueryID(c, "label_id")
	recipeID, okRecipe := parseQueryID(c, "recipe_id")
	if !okLabel || !okRecipe {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "label_id and recipe_id are required")
		return
	}

	label, err := h.labels.RemoveRecipe(c.Request.Context(), userID, labelID, recipeID)
	if err != nil {
		writeLabelError(c, err)
		return
	}
	response.OK(c, label)
}

func writeLabelError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrRecipeNotFound):
		response.Error(c, http.StatusNotFound, response.CodeRecipeNotFound, msgRecipeNotFound)
	case errors.Is(err, app.ErrLabelNotFound):
		response.Error(c, http.StatusNotFound, response.CodeLabelNotFound, err.Error())
	case errors.Is(err, app.ErrLabelExists):
		response.Error(c, http.StatusConflict, response.CodeLabelExists, err.Error())
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "internal server error")
	}
}
