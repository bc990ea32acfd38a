package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	appsvc "recipebox/internal/app"
	"recipebox/internal/model"
	"recipebox/internal/pkg/jwtutil"
	"recipebox/internal/repository"
	"recipebox/internal/testutil"
	"recipebox/internal/transport/http/handler"
	"recipebox/internal/transport/http/middleware"
)

const testSecret = "test-secret"

type memImages struct {
	seq     int
	deleted []string
}

func (m *memImages) Upload(_ context.Context, data []byte, filename string) (*model.Image, error) {
	m.seq++
	key := fmt.Sprintf("recipe-images/%d.png", m.seq)
	return &model.Image{Key: key, Location: "http://img/" + key, Size: int64(len(data)), OriginalName: filename}, nil
}

func (m *memImages) UploadFromURL(context.Context, string) (*model.Image, error) {
	return nil, errors.New("fetch failed")
}

func (m *memImages) Delete(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	images *memImages
}

func newTestServer(t *testing.T, limiter *middleware.RateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	userRepo := repository.NewUserRepository(db)
	recipeRepo := repository.NewRecipeRepository(db)
	labelRepo := repository.NewLabelRepository(db)
	images := &memImages{}

	authService := appsvc.NewAuthService(userRepo, testSecret, time.Hour)
	recipeService := appsvc.NewRecipeService(recipeRepo, labelRepo, userRepo, images, nil, nil, zap.NewNop())
	labelService := appsvc.NewLabelService(labelRepo, recipeRepo, nil, zap.NewNop())

	router := gin.New()
	router.Use(middleware.RequestLogger(zap.NewNop()))
	Register(router, testSecret, limiter, Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Recipes: handler.NewRecipeHandler(recipeService, 1<<20),
		Labels:  handler.NewLabelHandler(labelService),
		Health: handler.NewHealthHandler(handler.HealthInfo{App: "recipebox", StartedAt: time.Now()}, map[string]handler.CheckFunc{
			"mysql": func(context.Context) error { return nil },
			"s3":    func(context.Context) error { return errors.New("bucket missing") },
		}),
	})
	return &testServer{router: router, db: db, images: images}
}

func (s *testServer) token(t *testing.T, user *model.User) string {
	t.Helper()
	token, err := jwtutil.GenerateToken(testSecret, time.Hour, user.ID, user.Username)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) doJSON(t *testing.T, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return s.do(t, method, path, token, body, "application/json")
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func TestRecipeRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/v1/recipes", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/recipes", "garbage", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.doJSON(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "password1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var login struct {
		Token string `json:"token"`
	}
	w = s.doJSON(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "password1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &login)

	var me model.User
	w = s.do(t, http.MethodGet, "/api/v1/auth/me", login.Token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &me)
	assert.Equal(t, "alice", me.Username)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestCreateRecipe_JSONAndTitleRules(t *testing.T) {
	s := newTestServer(t, nil)
	user := testutil.CreateUser(t, s.db, "cook")
	token := s.token(t, user)

	w := s.doJSON(t, http.MethodPost, "/api/v1/recipes", token, map[string]interface{}{"description": "no title"})
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Equal(t, "Recipe title must be provided.", decode(t, w, nil).Message)

	var created model.Recipe
	w = s.doJSON(t, http.MethodPost, "/api/v1/recipes", token, map[string]interface{}{
		"title": "Chili", "yield": "4", "notes": 12,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	decode(t, w, &created)
	assert.Equal(t, "Chili", created.Title)
	assert.Equal(t, "4", created.Yield)
	assert.Empty(t, created.Notes)
	assert.Equal(t, model.FolderMain, created.Folder)
	assert.Contains(t, w.Body.String(), `"labels":[]`)

	w = s.doJSON(t, http.MethodPost, "/api/v1/recipes", token, map[string]interface{}{"title": "Chili"})
	require.Equal(t, http.StatusCreated, w.Code)
	decode(t, w, &created)
	assert.Equal(t, "Chili (2)", created.Title)

	w = s.doJSON(t, http.MethodPost, "/api/v1/recipes", token, map[string]interface{}{"title": "Pie", "image_url": "https://example.com/pie.png"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Error uploading image via URL!", decode(t, w, nil).Message)
}

func TestCreateRecipe_MultipartWithImage(t *testing.T) {
	s := newTestServer(t, nil)
	user := testutil.CreateUser(t, s.db, "cook")
	token := s.token(t, user)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "Cake"))
	require.NoError(t, mw.WriteField("ingredients", "flour"))
	part, err := mw.CreateFormFile("image", "cake.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake png bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := s.do(t, http.MethodPost, "/api/v1/recipes", token, &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created model.Recipe
	decode(t, w, &created)
	assert.Equal(t, "flour", created.Ingredients)
	require.NotNil(t, created.Image)
	assert.Equal(t, "cake.png", created.Image.OriginalName)
}

func TestCreateRecipe_MultipartTooLarge(t *testing.T) {
	s := newTestServer(t, nil)
	user := testutil.CreateUser(t, s.db, "cook")
	token := s.token(t, user)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "Huge"))
	part, err := mw.CreateFormFile("image", "huge.png")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), 3<<20))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := s.do(t, http.MethodPost, "/api/v1/recipes", token, &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRecipeLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	owner := testutil.CreateUser(t, s.db, "owner")
	stranger := testutil.CreateUser(t, s.db, "stranger")
	token := s.token(t, owner)
	soup := testutil.CreateRecipe(t, s.db, owner.ID, "Soup", "")
	testutil.CreateRecipe(t, s.db, owner.ID, "Bread", model.FolderInbox)

	path := fmt.Sprintf("/api/v1/recipes/%d", soup.ID)

	w := s.do(t, http.MethodGet, path, s.token(t, stranger), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/recipes/abc", token, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var list []model.Recipe
	w = s.do(t, http.MethodGet, "/api/v1/recipes?folder=main", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Soup", list[0].Title)

	var updated model.Recipe
	w = s.doJSON(t, http.MethodPut, path, token, map[string]interface{}{"notes": "more salt", "folder": "archive", "source": nil})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &updated)
	assert.Equal(t, "more salt", updated.Notes)
	assert.Equal(t, "archive", updated.Folder)
	assert.Equal(t, "Soup", updated.Title)

	w = s.doJSON(t, http.MethodPost, "/api/v1/labels", token, map[string]interface{}{"title": "Dinner", "recipe_id": soup.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/recipes?labels=dinner,lunch", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "dinner", list[0].Labels[0].Title)

	w = s.do(t, http.MethodDelete, path, token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var labels []model.Label
	w = s.do(t, http.MethodGet, "/api/v1/labels", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &labels)
	assert.Empty(t, labels)

	w = s.do(t, http.MethodDelete, path, token, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportRoute(t *testing.T) {
	s := newTestServer(t, nil)
	user := testutil.CreateUser(t, s.db, "cook")
	token := s.token(t, user)
	testutil.CreateRecipe(t, s.db, user.ID, "Soup", "")

	w := s.do(t, http.MethodGet, "/api/v1/recipes/export?format=csv", token, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Unknown export format. Please send json, xml, txt, or yaml.", decode(t, w, nil).Message)

	w = s.do(t, http.MethodGet, "/api/v1/recipes/export?format=xml", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/xml", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment; filename=recipes-"))
	assert.True(t, strings.HasSuffix(w.Header().Get("Content-Disposition"), ".xml"))
	assert.Contains(t, w.Body.String(), "<title>Soup</title>")
}

func TestLabelRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	user := testutil.CreateUser(t, s.db, "cook")
	token := s.token(t, user)
	soup := testutil.CreateRecipe(t, s.db, user.ID, "Soup", "")

	w := s.doJSON(t, http.MethodPost, "/api/v1/labels", token, map[string]interface{}{"title": "quick", "recipe_id": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)

	var quick, easy model.Label
	w = s.doJSON(t, http.MethodPost, "/api/v1/labels", token, map[string]interface{}{"title": "quick", "recipe_id": soup.ID})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &quick)
	w = s.doJSON(t, http.MethodPost, "/api/v1/labels", token, map[string]interface{}{"title": "easy", "recipe_id": soup.ID})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &easy)

	w = s.doJSON(t, http.MethodPut, fmt.Sprintf("/api/v1/labels/%d", quick.ID), token, map[string]string{"title": "easy"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/labels?label_id=x", token, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var removed model.Label
	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/labels?label_id=%d&recipe_id=%d", easy.ID, soup.ID), token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &removed)
	assert.Equal(t, "easy", removed.Title)
	assert.Empty(t, removed.RecipeIDs)

	var labels []model.Label
	w = s.do(t, http.MethodGet, "/api/v1/labels", token, nil, "")
	decode(t, w, &labels)
	require.Len(t, labels, 1)
	assert.Equal(t, "quick", labels[0].Title)
	assert.Equal(t, []uint{soup.ID}, labels[0].RecipeIDs)
}

func TestRateLimitOnWrites(t *testing.T) {
	s := newTestServer(t, middleware.NewRateLimiter(2, time.Hour))
	user := testutil.CreateUser(t, s.db, "cook")
	token := s.token(t, user)

	for i := 0; i < 2; i++ {
		w := s.doJSON(t, http.MethodPost, "/api/v1/recipes", token, map[string]string{"title": "Soup"})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := s.doJSON(t, http.MethodPost, "/api/v1/recipes", token, map[string]string{"title": "Soup"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/recipes", token, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Dependencies map[string]struct {
			OK      bool   `json:"ok"`
			Message string `json:"message"`
		} `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Dependencies["mysql"].OK)
	assert.False(t, body.Dependencies["s3"].OK)
	assert.Equal(t, "bucket missing", body.Dependencies["s3"].Message)
}
