package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"recipebox/internal/imagestore"
	"recipebox/internal/model"
	"recipebox/internal/repository"
	"recipebox/internal/testutil"
)

type fakeImages struct {
	mu        sync.Mutex
	seq       int
	stored    map[string]bool
	deleted   []string
	uploadErr error
	deleteErr error
}

func newFakeImages() *fakeImages {
	return &fakeImages{stored: map[string]bool{}}
}

func (f *fakeImages) Upload(_ context.Context, data []byte, filename string) (*model.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.seq++
	key := fmt.Sprintf("recipe-images/%d.png", f.seq)
	f.stored[key] = true
	return &model.Image{Key: key, MimeType: "image/png", Size: int64(len(data)), OriginalName: filename}, nil
}

func (f *fakeImages) UploadFromURL(ctx context.Context, rawURL string) (*model.Image, error) {
	if rawURL == "ftp://nope" {
		return nil, imagestore.ErrInvalidImageURL
	}
	return f.Upload(ctx, []byte(rawURL), rawURL)
}

func (f *fakeImages) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.stored, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type fakePublisher struct {
	jobs []model.ImageCleanupJob
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, job model.ImageCleanupJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeCache struct {
	mu       sync.Mutex
	versions map[uint]int64
	entries  map[string][]model.Recipe
	gets     int
	hits     int
	failRead bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{versions: map[uint]int64{}, entries: map[string][]model.Recipe{}}
}

func (c *fakeCache) key(accountID uint, version int64, variant string) string {
	return fmt.Sprintf("%d:%d:%s", accountID, version, variant)
}

func (c *fakeCache) GetList(_ context.Context, accountID uint, variant string) ([]model.Recipe, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failRead {
		return nil, 0, false, errors.New("redis down")
	}
	v := c.versions[accountID]
	recipes, ok := c.entries[c.key(accountID, v, variant)]
	if ok {
		c.hits++
	}
	return recipes, v, ok, nil
}

func (c *fakeCache) reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets
}

func (c *fakeCache) SetList(_ context.Context, accountID uint, version int64, variant string, recipes []model.Recipe) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(accountID, version, variant)] = recipes
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, accountID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[accountID]++
	return nil
}

type fixture struct {
	db        *gorm.DB
	recipes   *RecipeService
	labels    *LabelService
	images    *fakeImages
	publisher *fakePublisher
	cache     *fakeCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	recipeRepo := repository.NewRecipeRepository(db)
	labelRepo := repository.NewLabelRepository(db)
	userRepo := repository.NewUserRepository(db)

	f := &fixture{
		db:        db,
		images:    newFakeImages(),
		publisher: &fakePublisher{},
		cache:     newFakeCache(),
	}
	f.recipes = NewRecipeService(recipeRepo, labelRepo, userRepo, f.images, f.publisher, f.cache, zap.NewNop())
	f.labels = NewLabelService(labelRepo, recipeRepo, f.cache, zap.NewNop())
	return f
}

func strPtr(s string) *string {
	return &s
}
