package app

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"recipebox/internal/model"
	"recipebox/internal/repository"
)

type LabelService struct {
	labelRepo  *repository.LabelRepository
	recipeRepo *repository.RecipeRepository
	cache      RecipeListCache
	logger     *zap.Logger
}

type AddLabelInput struct {
	AccountID uint
	Title     string
	RecipeID  uint
}

func NewLabelService(
	labelRepo *repository.LabelRepository,
	recipeRepo *repository.RecipeRepository,
	cache RecipeListCache,
	logger *zap.Logger,
) *LabelService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LabelService{
		labelRepo:  labelRepo,
		recipeRepo: recipeRepo,
		cache:      cache,
		logger:     logger,
	}
}

// Add attaches a recipe to the account's label with the given title,
// creating the label on first use.
func (s *LabelService) Add(ctx context.Context, input AddLabelInput) (*model.Label, error) {
	title := normalizeLabelTitle(input.Title)
	if input.AccountID == 0 || input.RecipeID == 0 || title == "" {
		return nil, ErrInvalidInput
	}

	exists, err := s.recipeRepo.ExistsForAccount(ctx, input.RecipeID, input.AccountID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrRecipeNotFound
	}

	label, err := s.labelRepo.AttachByTitle(ctx, input.AccountID, title, input.RecipeID)
	if repository.IsDuplicateKey(err) {
		// lost a race creating the same title; the winner's label exists now
		label, err = s.labelRepo.AttachByTitle(ctx, input.AccountID, title, input.RecipeID)
	}
	if err != nil {
		return nil, err
	}

	invalidateList(ctx, s.cache, s.logger, input.AccountID)
	return label, nil
}

func (s *LabelService) List(ctx context.Context, accountID uint) ([]model.Label, error) {
	if accountID == 0 {
		return nil, ErrInvalidInput
	}
	return s.labelRepo.ListByAccountID(ctx, accountID)
}

func (s *LabelService) Rename(ctx context.Context, accountID, labelID uint, title string) (*model.Label, error) {
	title = normalizeLabelTitle(title)
	if accountID == 0 || labelID == 0 || title == "" {
		return nil, ErrInvalidInput
	}

	label, err := s.labelRepo.GetByIDAndAccountID(ctx, labelID, accountID)
	if err != nil {
		return nil, err
	}
	if label == nil {
		return nil, ErrLabelNotFound
	}

	if label.Title != title {
		clash, err := s.labelRepo.GetByTitle(ctx, accountID, title)
		if err != nil {
			return nil, err
		}
		if clash != nil {
			return nil, ErrLabelExists
		}
		if err := s.labelRepo.UpdateTitle(ctx, label, title); err != nil {
			if repository.IsDuplicateKey(err) {
				return nil, ErrLabelExists
			}
			return nil, err
		}
		label.Title = title
		invalidateList(ctx, s.cache, s.logger, accountID)
	}

	if label.RecipeIDs, err = s.labelRepo.RecipeIDs(ctx, label.ID); err != nil {
		return nil, err
	}
	return label, nil
}

// RemoveRecipe detaches a recipe from a label. A label left without recipes
// is deleted; the returned label then has no RecipeIDs.
func (s *LabelService) RemoveRecipe(ctx context.Context, accountID, labelID, recipeID uint) (*model.Label, error) {
	if accountID == 0 || labelID == 0 || recipeID == 0 {
		return nil, ErrInvalidInput
	}

	label, err := s.labelRepo.GetByIDAndAccountID(ctx, labelID, accountID)
	if err != nil {
		return nil, err
	}
	if label == nil {
		return nil, ErrLabelNotFound
	}

	deleted, err := s.labelRepo.RemoveRecipe(ctx, labelID, recipeID)
	if err != nil {
		return nil, err
	}
	invalidateList(ctx, s.cache, s.logger, accountID)

	if deleted {
		s.logger.Info("empty label removed", zap.Uint("label_id", labelID))
		label.RecipeIDs = nil
		return label, nil
	}
	if label.RecipeIDs, err = s.labelRepo.RecipeIDs(ctx, labelID); err != nil {
		return nil, err
	}
	return label, nil
}

func normalizeLabelTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
