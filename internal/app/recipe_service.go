package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"recipebox/internal/export"
	"recipebox/internal/imagestore"
	"recipebox/internal/model"
	"recipebox/internal/repository"
)

type ImageStore interface {
	Upload(ctx context.Context, data []byte, filename string) (*model.Image, error)
	UploadFromURL(ctx context.Context, rawURL string) (*model.Image, error)
	Delete(ctx context.Context, key string) error
}

type CleanupPublisher interface {
	Publish(ctx context.Context, job model.ImageCleanupJob) error
}

type RecipeListCache interface {
	GetList(ctx context.Context, accountID uint, variant string) ([]model.Recipe, int64, bool, error)
	SetList(ctx context.Context, accountID uint, version int64, variant string, recipes []model.Recipe) error
	Invalidate(ctx context.Context, accountID uint) error
}

type RecipeService struct {
	recipeRepo *repository.RecipeRepository
	labelRepo  *repository.LabelRepository
	userRepo   *repository.UserRepository
	images     ImageStore
	cleanup    CleanupPublisher
	cache      RecipeListCache
	logger     *zap.Logger

	group singleflight.Group
	now   func() time.Time
}

type ImageUpload struct {
	Filename string
	Data     []byte
}

// RecipeFields holds the optional free-text fields. A nil pointer leaves the
// stored value untouched.
type RecipeFields struct {
	Description  *string
	Yield        *string
	ActiveTime   *string
	TotalTime    *string
	Source       *string
	URL          *string
	Notes        *string
	Ingredients  *string
	Instructions *string
}

type CreateRecipeInput struct {
	AccountID            uint
	Title                string
	Fields               RecipeFields
	Image                *ImageUpload
	ImageURL             string
	DestinationUserEmail string
}

type ListRecipesInput struct {
	AccountID uint
	Folder    string
	Sort      string
	Labels    []string
}

type UpdateRecipeInput struct {
	AccountID uint
	RecipeID  uint
	Title     *string
	Folder    *string
	Fields    RecipeFields
	Image     *ImageUpload
	ImageURL  string
}

type ExportResult struct {
	Data        []byte
	ContentType string
	Filename    string
}

func NewRecipeService(
	recipeRepo *repository.RecipeRepository,
	labelRepo *repository.LabelRepository,
	userRepo *repository.UserRepository,
	images ImageStore,
	cleanup CleanupPublisher,
	cache RecipeListCache,
	logger *zap.Logger,
) *RecipeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecipeService{
		recipeRepo: recipeRepo,
		labelRepo:  labelRepo,
		userRepo:   userRepo,
		images:     images,
		cleanup:    cleanup,
		cache:      cache,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *RecipeService) Create(ctx context.Context, input CreateRecipeInput) (*model.Recipe, error) {
	if input.AccountID == 0 {
		return nil, ErrInvalidInput
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	ownerID, folder := input.AccountID, model.FolderMain
	var sender *model.User
	if email := normalizeEmail(input.DestinationUserEmail); email != "" {
		recipient, err := s.userRepo.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if recipient == nil {
			return nil, ErrRecipientNotFound
		}
		sender, err = s.userRepo.GetByID(ctx, input.AccountID)
		if err != nil {
			return nil, err
		}
		if sender == nil {
			return nil, ErrInvalidInput
		}
		ownerID, folder = recipient.ID, model.FolderInbox
	}

	img, err := s.storeImage(ctx, input.Image, input.ImageURL)
	if err != nil {
		return nil, err
	}

	adjusted, err := FindTitle(ctx, s.recipeRepo, ownerID, 0, title)
	if err != nil {
		s.discardImage(ctx, img)
		return nil, err
	}

	recipe := &model.Recipe{
		AccountID: ownerID,
		Title:     adjusted,
		Folder:    folder,
		Image:     img,
	}
	input.Fields.apply(recipe)
	if sender != nil {
		recipe.FromUserID = &sender.ID
	}
	if err := s.recipeRepo.Create(ctx, recipe); err != nil {
		s.discardImage(ctx, img)
		return nil, err
	}
	recipe.FromUser = sender
	recipe.Labels = []model.Label{}

	s.invalidate(ctx, ownerID)
	s.logger.Info("recipe created",
		zap.Uint("recipe_id", recipe.ID),
		zap.Uint("account_id", ownerID),
		zap.String("folder", folder),
	)
	return recipe, nil
}

func (s *RecipeService) List(ctx context.Context, input ListRecipesInput) ([]model.Recipe, error) {
	if input.AccountID == 0 {
		return nil, ErrInvalidInput
	}
	folder := strings.TrimSpace(input.Folder)
	sortKey, order := resolveSort(input.Sort)

	recipes, err := s.loadList(ctx, input.AccountID, folder, sortKey, order)
	if err != nil {
		return nil, err
	}
	return filterByLabels(recipes, input.Labels), nil
}

func (s *RecipeService) Get(ctx context.Context, accountID, recipeID uint) (*model.Recipe, error) {
	if accountID == 0 || recipeID == 0 {
		return nil, ErrInvalidInput
	}
	recipe, err := s.recipeRepo.GetByIDAndAccountID(ctx, recipeID, accountID)
	if err != nil {
		return nil, err
	}
	if recipe == nil {
		return nil, ErrRecipeNotFound
	}
	one := []model.Recipe{*recipe}
	if err := s.attachLabels(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

func (s *RecipeService) Update(ctx context.Context, input UpdateRecipeInput) (*model.Recipe, error) {
	if input.AccountID == 0 || input.RecipeID == 0 {
		return nil, ErrInvalidInput
	}
	recipe, err := s.recipeRepo.GetByIDAndAccountID(ctx, input.RecipeID, input.AccountID)
	if err != nil {
		return nil, err
	}
	if recipe == nil {
		return nil, ErrRecipeNotFound
	}

	input.Fields.apply(recipe)
	if input.Folder != nil {
		recipe.Folder = strings.TrimSpace(*input.Folder)
	}

	img, err := s.storeImage(ctx, input.Image, input.ImageURL)
	if err != nil {
		return nil, err
	}
	replacedKey := ""
	if img != nil {
		replacedKey = recipe.ImageKey()
		recipe.Image = img
	}

	title := recipe.Title
	if input.Title != nil {
		if t := strings.TrimSpace(*input.Title); t != "" {
			title = t
		}
	}
	adjusted, err := FindTitle(ctx, s.recipeRepo, input.AccountID, recipe.ID, title)
	if err != nil {
		s.discardImage(ctx, img)
		return nil, err
	}
	recipe.Title = adjusted
	recipe.UpdatedAt = s.now()

	if err := s.recipeRepo.Save(ctx, recipe); err != nil {
		s.discardImage(ctx, img)
		return nil, err
	}
	s.scheduleImageCleanup(ctx, replacedKey, "image replaced")
	s.invalidate(ctx, input.AccountID)

	one := []model.Recipe{*recipe}
	if err := s.attachLabels(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

// Delete removes the recipe and unlinks it from the account's labels,
// deleting labels left empty. The image is scheduled for deletion only after
// the transaction commits.
func (s *RecipeService) Delete(ctx context.Context, accountID, recipeID uint) (*model.Recipe, error) {
	if accountID == 0 || recipeID == 0 {
		return nil, ErrInvalidInput
	}
	recipe, err := s.recipeRepo.GetByIDAndAccountID(ctx, recipeID, accountID)
	if err != nil {
		return nil, err
	}
	if recipe == nil {
		return nil, ErrRecipeNotFound
	}

	deletedLabels, err := s.recipeRepo.DeleteWithLabels(ctx, recipeID, accountID)
	if repository.IsNotFound(err) {
		return nil, ErrRecipeNotFound
	}
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, accountID)
	s.scheduleImageCleanup(ctx, recipe.ImageKey(), "recipe deleted")

	if len(deletedLabels) > 0 {
		s.logger.Info("empty labels removed",
			zap.Uint("recipe_id", recipeID),
			zap.Uints("label_ids", deletedLabels),
		)
	}
	return recipe, nil
}

func (s *RecipeService) Export(ctx context.Context, accountID uint, rawFormat string) (*ExportResult, error) {
	if accountID == 0 {
		return nil, ErrInvalidInput
	}
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, ErrUnknownExportFormat
	}

	recipes, err := s.recipeRepo.ListByAccountID(ctx, accountID, "", "title ASC")
	if err != nil {
		return nil, err
	}
	if err := s.attachLabels(ctx, recipes); err != nil {
		return nil, err
	}

	data, err := export.Encode(format, recipes)
	if err != nil {
		return nil, fmt.Errorf("encode %s export failed: %w", format, err)
	}
	return &ExportResult{
		Data:        data,
		ContentType: format.ContentType(),
		Filename:    format.Filename(s.now()),
	}, nil
}

func (s *RecipeService) loadList(ctx context.Context, accountID uint, folder, sortKey, order string) ([]model.Recipe, error) {
	variant := folder + "|" + sortKey
	var version int64
	cacheUsable := false
	if s.cache != nil {
		cached, v, hit, err := s.cache.GetList(ctx, accountID, variant)
		switch {
		case err != nil:
			s.logger.Warn("recipe list cache read failed", zap.Error(err))
		case hit:
			return cached, nil
		default:
			version, cacheUsable = v, true
		}
	}

	// The shared load outlives any single caller; each caller still stops
	// waiting when its own ctx ends.
	loadCtx := context.WithoutCancel(ctx)
	key := fmt.Sprintf("%d|%d|%s", accountID, version, variant)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		recipes, err := s.recipeRepo.ListByAccountID(loadCtx, accountID, folder, order)
		if err != nil {
			return nil, err
		}
		if err := s.attachLabels(loadCtx, recipes); err != nil {
			return nil, err
		}
		if cacheUsable {
			if err := s.cache.SetList(loadCtx, accountID, version, variant, recipes); err != nil {
				s.logger.Warn("recipe list cache write failed", zap.Error(err))
			}
		}
		return recipes, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]model.Recipe), nil
	}
}

func (s *RecipeService) attachLabels(ctx context.Context, recipes []model.Recipe) error {
	if len(recipes) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(recipes))
	for _, r := range recipes {
		ids = append(ids, r.ID)
	}
	byRecipe, err := s.labelRepo.ListByRecipeIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range recipes {
		labels := byRecipe[recipes[i].ID]
		if labels == nil {
			labels = []model.Label{}
		}
		recipes[i].Labels = labels
	}
	return nil
}

func (s *RecipeService) storeImage(ctx context.Context, upload *ImageUpload, imageURL string) (*model.Image, error) {
	imageURL = strings.TrimSpace(imageURL)
	hasUpload := upload != nil && len(upload.Data) > 0
	if imageURL == "" && !hasUpload {
		return nil, nil
	}
	if s.images == nil {
		return nil, ErrImageUpload
	}

	var (
		img *model.Image
		err error
	)
	if imageURL != "" {
		img, err = s.images.UploadFromURL(ctx, imageURL)
	} else {
		img, err = s.images.Upload(ctx, upload.Data, upload.Filename)
	}
	if err != nil {
		return nil, classifyImageError(err)
	}
	return img, nil
}

// discardImage removes an image stored earlier in a request that then failed.
func (s *RecipeService) discardImage(ctx context.Context, img *model.Image) {
	if img == nil || s.images == nil {
		return
	}
	if err := s.images.Delete(ctx, img.Key); err != nil {
		s.logger.Error("failed to clean image after failed request", zap.String("key", img.Key), zap.Error(err))
		return
	}
	s.logger.Info("cleaned image after failed request", zap.String("key", img.Key))
}

// scheduleImageCleanup queues key for deletion and deletes it inline when the
// queue is unavailable.
func (s *RecipeService) scheduleImageCleanup(ctx context.Context, key, reason string) {
	if key == "" {
		return
	}
	if s.cleanup != nil {
		err := s.cleanup.Publish(ctx, model.ImageCleanupJob{
			Key:         key,
			Reason:      reason,
			RequestedAt: s.now(),
		})
		if err == nil {
			return
		}
		s.logger.Warn("enqueue image cleanup failed, deleting inline", zap.String("key", key), zap.Error(err))
	}
	if s.images == nil {
		return
	}
	if err := s.images.Delete(ctx, key); err != nil {
		s.logger.Error("error cleaning image", zap.String("key", key), zap.String("reason", reason), zap.Error(err))
	}
}

func (s *RecipeService) invalidate(ctx context.Context, accountID uint) {
	invalidateList(ctx, s.cache, s.logger, accountID)
}

func invalidateList(ctx context.Context, cache RecipeListCache, logger *zap.Logger, accountID uint) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, accountID); err != nil {
		logger.Warn("recipe list cache invalidate failed", zap.Uint("account_id", accountID), zap.Error(err))
	}
}

func (f RecipeFields) apply(r *model.Recipe) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&r.Description, f.Description)
	set(&r.Yield, f.Yield)
	set(&r.ActiveTime, f.ActiveTime)
	set(&r.TotalTime, f.TotalTime)
	set(&r.Source, f.Source)
	set(&r.URL, f.URL)
	set(&r.Notes, f.Notes)
	set(&r.Ingredients, f.Ingredients)
	set(&r.Instructions, f.Instructions)
}

func classifyImageError(err error) error {
	switch {
	case errors.Is(err, imagestore.ErrImageTooLarge):
		return fmt.Errorf("%w: %v", ErrImageTooLarge, err)
	case errors.Is(err, imagestore.ErrUnsupportedImage),
		errors.Is(err, imagestore.ErrEmptyImage),
		errors.Is(err, imagestore.ErrInvalidImageURL):
		return fmt.Errorf("%w: %v", ErrInvalidImage, err)
	default:
		return fmt.Errorf("%w: %v", ErrImageUpload, err)
	}
}

var sortOrders = map[string]string{
	"title":    "title ASC",
	"-title":   "title DESC",
	"created":  "created_at ASC",
	"-created": "created_at DESC",
	"updated":  "updated_at ASC",
	"-updated": "updated_at DESC",
}

func resolveSort(raw string) (string, string) {
	key := strings.TrimSpace(raw)
	if order, ok := sortOrders[key]; ok {
		return key, order
	}
	return "title", sortOrders["title"]
}

// filterByLabels keeps recipes carrying at least one of the wanted label
// titles. No wanted titles keeps everything.
func filterByLabels(recipes []model.Recipe, wanted []string) []model.Recipe {
	allowed := make(map[string]struct{}, len(wanted))
	for _, w := range wanted {
		if w = normalizeLabelTitle(w); w != "" {
			allowed[w] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return recipes
	}

	out := make([]model.Recipe, 0, len(recipes))
	for _, r := range recipes {
		for _, l := range r.Labels {
			if _, ok := allowed[l.Title]; ok {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
