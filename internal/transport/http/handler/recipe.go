package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"

	"recipebox/internal/app"
	"recipebox/internal/transport/http/middleware"
	"recipebox/internal/transport/http/response"
)

const (
	msgTitleRequired   = "Recipe title must be provided."
	msgRecipeNotFound  = "Recipe not found."
	msgImageURLFailed  = "Error uploading image via URL!"
	msgImageFailed     = "Error uploading image!"
	msgUnknownExport   = "Unknown export format. Please send json, xml, txt, or yaml."
	multipartFormField = "image"
)

type RecipeHandler struct {
	recipes  *app.RecipeService
	maxBytes int64
}

func NewRecipeHandler(recipes *app.RecipeService, maxUploadBytes int64) *RecipeHandler {
	return &RecipeHandler{recipes: recipes, maxBytes: maxUploadBytes}
}

func (h *RecipeHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	form, err := h.readForm(c)
	if err != nil {
		h.writeFormError(c, err)
		return
	}
	title, _ := form.value("title")
	destination, _ := form.value("destination_user_email")
	imageURL, _ := form.value("image_url")

	recipe, err := h.recipes.Create(c.Request.Context(), app.CreateRecipeInput{
		AccountID:            userID,
		Title:                title,
		Fields:               form.fields(),
		Image:                form.image,
		ImageURL:             imageURL,
		DestinationUserEmail: destination,
	})
	if err != nil {
		writeRecipeError(c, err, strings.TrimSpace(imageURL) != "")
		return
	}
	response.Created(c, recipe)
}

func (h *RecipeHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var labels []string
	if raw := c.Query("labels"); raw != "" {
		labels = strings.Split(raw, ",")
	}
	recipes, err := h.recipes.List(c.Request.Context(), app.ListRecipesInput{
		AccountID: userID,
		Folder:    c.Query("folder"),
		Sort:      c.Query("sort"),
		Labels:    labels,
	})
	if err != nil {
		writeRecipeError(c, err, false)
		return
	}
	response.OK(c, recipes)
}

func (h *RecipeHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	recipeID, ok := parseID(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid recipe id")
		return
	}

	recipe, err := h.recipes.Get(c.Request.Context(), userID, recipeID)
	if err != nil {
		writeRecipeError(c, err, false)
		return
	}
	response.OK(c, recipe)
}

func (h *RecipeHandler) Update(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	recipeID, ok := parseID(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid recipe id")
		return
	}

	form, err := h.readForm(c)
	if err != nil {
		h.writeFormError(c, err)
		return
	}
	input := app.UpdateRecipeInput{
		AccountID: userID,
		RecipeID:  recipeID,
		Fields:    form.fields(),
		Image:     form.image,
	}
	if v, ok := form.value("title"); ok {
		input.Title = &v
	}
	if v, ok := form.value("folder"); ok {
		input.Folder = &v
	}
	input.ImageURL, _ = form.value("image_url")

	recipe, err := h.recipes.Update(c.Request.Context(), input)
	if err != nil {
		writeRecipeError(c, err, strings.TrimSpace(input.ImageURL) != "")
		return
	}
	response.OK(c, recipe)
}

func (h *RecipeHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	recipeID, ok := parseID(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid recipe id")
		return
	}

	recipe, err := h.recipes.Delete(c.Request.Context(), userID, recipeID)
	if err != nil {
		writeRecipeError(c, err, false)
		return
	}
	response.OK(c, recipe)
}

func (h *RecipeHandler) Export(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	result, err := h.recipes.Export(c.Request.Context(), userID, c.Query("format"))
	if err != nil {
		writeRecipeError(c, err, false)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

// recipeForm is a decoded create/update body. Only string values count as
// present, so a JSON null or number leaves the stored field untouched.
type recipeForm struct {
	values map[string]string
	image  *app.ImageUpload
}

func (f *recipeForm) value(name string) (string, bool) {
	v, ok := f.values[name]
	return v, ok
}

func (f *recipeForm) ptr(name string) *string {
	if v, ok := f.values[name]; ok {
		return &v
	}
	return nil
}

func (f *recipeForm) fields() app.RecipeFields {
	return app.RecipeFields{
		Description:  f.ptr("description"),
		Yield:        f.ptr("yield"),
		ActiveTime:   f.ptr("active_time"),
		TotalTime:    f.ptr("total_time"),
		Source:       f.ptr("source"),
		URL:          f.ptr("url"),
		Notes:        f.ptr("notes"),
		Ingredients:  f.ptr("ingredients"),
		Instructions: f.ptr("instructions"),
	}
}

var (
	errBodyTooLarge = errors.New("request body too large")
	errBadBody      = errors.New("invalid request payload")
)

func (h *RecipeHandler) readForm(c *gin.Context) (*recipeForm, error) {
	if h.maxBytes > 0 {
		// leave headroom for the non-file form fields
		limit := h.maxBytes + 1<<20
		if c.Request.ContentLength > limit {
			return nil, errBodyTooLarge
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	form := &recipeForm{values: map[string]string{}}
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
			return nil, classifyBodyError(err)
		}
		for name, vals := range c.Request.MultipartForm.Value {
			if len(vals) > 0 {
				form.values[name] = vals[0]
			}
		}
		image, err := h.readImage(c)
		if err != nil {
			return nil, err
		}
		form.image = image
		return form, nil
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, classifyBodyError(err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return form, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errBadBody
	}
	for name, v := range raw {
		if s, ok := v.(string); ok {
			form.values[name] = s
		}
	}
	return form, nil
}

func (h *RecipeHandler) readImage(c *gin.Context) (*app.ImageUpload, error) {
	header, err := c.FormFile(multipartFormField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyBodyError(err)
	}
	if h.maxBytes > 0 && header.Size > h.maxBytes {
		return nil, errBodyTooLarge
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded image: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read uploaded image: %w", err)
	}
	return &app.ImageUpload{Filename: header.Filename, Data: data}, nil
}

func classifyBodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
		return errBodyTooLarge
	}
	return errBadBody
}

func (h *RecipeHandler) writeFormError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeImageTooLarge, "uploaded image is too large")
	case errors.Is(err, errBadBody):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeImageUpload, msgImageFailed)
	}
}

func writeRecipeError(c *gin.Context, err error, viaURL bool) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrTitleRequired):
		response.Error(c, http.StatusPreconditionFailed, response.CodeTitleRequired, msgTitleRequired)
	case errors.Is(err, app.ErrRecipeNotFound):
		response.Error(c, http.StatusNotFound, response.CodeRecipeNotFound, msgRecipeNotFound)
	case errors.Is(err, app.ErrRecipientNotFound):
		response.Error(c, http.StatusNotFound, response.CodeRecipientNotFound, err.Error())
	case errors.Is(err, app.ErrDuplicateTitle):
		response.Error(c, http.StatusConflict, response.CodeDuplicateTitle, err.Error())
	case errors.Is(err, app.ErrImageTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeImageTooLarge, "uploaded image is too large")
	case errors.Is(err, app.ErrInvalidImage):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidImage, err.Error())
	case errors.Is(err, app.ErrUnknownExportFormat):
		response.Error(c, http.StatusBadRequest, response.CodeUnknownExport, msgUnknownExport)
	case errors.Is(err, app.ErrImageUpload):
		_ = c.Error(err)
		msg := msgImageFailed
		if viaURL {
			msg = msgImageURLFailed
		}
		response.Error(c, http.StatusInternalServerError, response.CodeImageUpload, msg)
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "internal server error")
	}
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func parseQueryID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Query(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
