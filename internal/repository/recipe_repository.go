package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"recipebox/internal/model"
)

type RecipeRepository struct {
	db *gorm.DB
}

func NewRecipeRepository(db *gorm.DB) *RecipeRepository {
	return &RecipeRepository{db: db}
}

func (r *RecipeRepository) Create(ctx context.Context, recipe *model.Recipe) error {
	if err := r.db.WithContext(ctx).Omit("FromUser").Create(recipe).Error; err != nil {
		return fmt.Errorf("create recipe failed: %w", err)
	}
	return nil
}

func (r *RecipeRepository) Save(ctx context.Context, recipe *model.Recipe) error {
	if err := r.db.WithContext(ctx).Omit("FromUser").Save(recipe).Error; err != nil {
		return fmt.Errorf("save recipe failed: %w", err)
	}
	return nil
}

func (r *RecipeRepository) GetByIDAndAccountID(ctx context.Context, id, accountID uint) (*model.Recipe, error) {
	var recipe model.Recipe
	err := r.db.WithContext(ctx).
		Preload("FromUser").
		Where("id = ? AND account_id = ?", id, accountID).
		First(&recipe).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get recipe failed: %w", err)
	}
	return &recipe, nil
}

// ListByAccountID lists an account's recipes; an empty folder matches every
// folder. order must be a trusted ORDER BY expression.
func (r *RecipeRepository) ListByAccountID(ctx context.Context, accountID uint, folder, order string) ([]model.Recipe, error) {
	q := r.db.WithContext(ctx).Preload("FromUser").Where("account_id = ?", accountID)
	if folder != "" {
		q = q.Where("folder = ?", folder)
	}
	if order == "" {
		order = "title ASC"
	}
	var recipes []model.Recipe
	if err := q.Order(order).Order("id ASC").Find(&recipes).Error; err != nil {
		return nil, fmt.Errorf("list recipes failed: %w", err)
	}
	return recipes, nil
}

// TitleTaken reports whether another recipe of the account already uses
// title. excludeID of 0 excludes nothing.
func (r *RecipeRepository) TitleTaken(ctx context.Context, accountID uint, title string, excludeID uint) (bool, error) {
	q := r.db.WithContext(ctx).Model(&model.Recipe{}).Where("account_id = ? AND title = ?", accountID, title)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("check recipe title failed: %w", err)
	}
	return count > 0, nil
}

func (r *RecipeRepository) ExistsForAccount(ctx context.Context, id, accountID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Recipe{}).Where("id = ? AND account_id = ?", id, accountID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check recipe failed: %w", err)
	}
	return count > 0, nil
}

// DeleteWithLabels deletes the recipe, unlinks it from its labels and drops
// the labels left empty, all in one transaction. It returns the IDs of the
// deleted labels, or gorm.ErrRecordNotFound when the account has no such
// recipe.
func (r *RecipeRepository) DeleteWithLabels(ctx context.Context, id, accountID uint) ([]uint, error) {
	var deletedLabelIDs []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND account_id = ?", id, accountID).Delete(&model.Recipe{})
		if res.Error != nil {
			return fmt.Errorf("delete recipe failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		var err error
		deletedLabelIDs, err = detachRecipe(tx, accountID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return deletedLabelIDs, nil
}
