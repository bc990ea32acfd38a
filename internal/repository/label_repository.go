package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"recipebox/internal/model"
)

type LabelRepository struct {
	db *gorm.DB
}

func NewLabelRepository(db *gorm.DB) *LabelRepository {
	return &LabelRepository{db: db}
}

// UpdateTitle renames a label. A clash with another label of the account
// returns an error matching IsDuplicateKey.
func (r *LabelRepository) UpdateTitle(ctx context.Context, label *model.Label, title string) error {
	if err := r.db.WithContext(ctx).Model(label).Update("title", title).Error; err != nil {
		return fmt.Errorf("update label title failed: %w", err)
	}
	return nil
}

// AttachByTitle finds or creates the account's label named title and links
// recipeID to it in one transaction, so a failed link never leaves an empty
// label behind. The returned label has RecipeIDs filled in. Two callers
// creating the same title at once make one of them fail with an error
// matching IsDuplicateKey; retrying finds the winner's label.
func (r *LabelRepository) AttachByTitle(ctx context.Context, accountID uint, title string, recipeID uint) (*model.Label, error) {
	var label model.Label
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account_id = ? AND title = ?", accountID, title).
			First(&label).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			label = model.Label{AccountID: accountID, Title: title}
			if err := tx.Create(&label).Error; err != nil {
				return fmt.Errorf("create label failed: %w", err)
			}
		case err != nil:
			return fmt.Errorf("get label by title failed: %w", err)
		}

		link := model.LabelRecipe{LabelID: label.ID, RecipeID: recipeID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			return fmt.Errorf("add recipe to label failed: %w", err)
		}
		if err := tx.Model(&model.LabelRecipe{}).Where("label_id = ?", label.ID).Order("recipe_id ASC").Pluck("recipe_id", &label.RecipeIDs).Error; err != nil {
			return fmt.Errorf("list label recipe ids failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &label, nil
}

func (r *LabelRepository) GetByIDAndAccountID(ctx context.Context, id, accountID uint) (*model.Label, error) {
	var label model.Label
	if err := r.db.WithContext(ctx).Where("id = ? AND account_id = ?", id, accountID).First(&label).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get label failed: %w", err)
	}
	return &label, nil
}

func (r *LabelRepository) GetByTitle(ctx context.Context, accountID uint, title string) (*model.Label, error) {
	var label model.Label
	if err := r.db.WithContext(ctx).Where("account_id = ? AND title = ?", accountID, title).First(&label).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get label by title failed: %w", err)
	}
	return &label, nil
}

// ListByAccountID returns the account's labels ordered by title with
// RecipeIDs filled in.
func (r *LabelRepository) ListByAccountID(ctx context.Context, accountID uint) ([]model.Label, error) {
	var labels []model.Label
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("title ASC").Find(&labels).Error; err != nil {
		return nil, fmt.Errorf("list labels failed: %w", err)
	}
	if len(labels) == 0 {
		return labels, nil
	}

	ids := make([]uint, 0, len(labels))
	for _, l := range labels {
		ids = append(ids, l.ID)
	}
	var links []model.LabelRecipe
	if err := r.db.WithContext(ctx).Where("label_id IN ?", ids).Order("recipe_id ASC").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("list label links failed: %w", err)
	}
	byLabel := make(map[uint][]uint, len(labels))
	for _, link := range links {
		byLabel[link.LabelID] = append(byLabel[link.LabelID], link.RecipeID)
	}
	for i := range labels {
		labels[i].RecipeIDs = byLabel[labels[i].ID]
	}
	return labels, nil
}

// ListByRecipeIDs loads the labels of many recipes with two queries and
// returns them keyed by recipe ID, each slice ordered by title.
func (r *LabelRepository) ListByRecipeIDs(ctx context.Context, recipeIDs []uint) (map[uint][]model.Label, error) {
	result := make(map[uint][]model.Label, len(recipeIDs))
	if len(recipeIDs) == 0 {
		return result, nil
	}

	var links []model.LabelRecipe
	if err := r.db.WithContext(ctx).Where("recipe_id IN ?", recipeIDs).Find(&links).Error; err != nil {
		return nil, fmt.Errorf("list recipe label links failed: %w", err)
	}
	if len(links) == 0 {
		return result, nil
	}

	labelIDs := make([]uint, 0, len(links))
	seen := make(map[uint]struct{}, len(links))
	for _, link := range links {
		if _, ok := seen[link.LabelID]; ok {
			continue
		}
		seen[link.LabelID] = struct{}{}
		labelIDs = append(labelIDs, link.LabelID)
	}

	var labels []model.Label
	if err := r.db.WithContext(ctx).Where("id IN ?", labelIDs).Order("title ASC").Find(&labels).Error; err != nil {
		return nil, fmt.Errorf("list labels by id failed: %w", err)
	}
	recipesByLabel := make(map[uint][]uint, len(labelIDs))
	for _, link := range links {
		recipesByLabel[link.LabelID] = append(recipesByLabel[link.LabelID], link.RecipeID)
	}
	for _, label := range labels {
		for _, recipeID := range recipesByLabel[label.ID] {
			result[recipeID] = append(result[recipeID], label)
		}
	}
	return result, nil
}

func (r *LabelRepository) RecipeIDs(ctx context.Context, labelID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&model.LabelRecipe{}).Where("label_id = ?", labelID).Order("recipe_id ASC").Pluck("recipe_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list label recipe ids failed: %w", err)
	}
	return ids, nil
}

// RemoveRecipe unlinks a recipe from a label and deletes the label when no
// recipes remain. It reports whether the label was deleted.
func (r *LabelRepository) RemoveRecipe(ctx context.Context, labelID, recipeID uint) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockLabels(tx, []uint{labelID})
		if err != nil || len(locked) == 0 {
			return err
		}
		if err := tx.Where("label_id = ? AND recipe_id = ?", labelID, recipeID).Delete(&model.LabelRecipe{}).Error; err != nil {
			return fmt.Errorf("remove recipe from label failed: %w", err)
		}
		deleted, err = deleteIfEmpty(tx, labelID)
		return err
	})
	return deleted, err
}

// detachRecipe unlinks a recipe from every label of the account and deletes
// the labels left empty. It returns the IDs of the deleted labels.
func detachRecipe(tx *gorm.DB, accountID, recipeID uint) ([]uint, error) {
	var labelIDs []uint
	if err := tx.Model(&model.LabelRecipe{}).
		Joins("JOIN labels ON labels.id = label_recipes.label_id").
		Where("labels.account_id = ? AND label_recipes.recipe_id = ?", accountID, recipeID).
		Pluck("label_recipes.label_id", &labelIDs).Error; err != nil {
		return nil, fmt.Errorf("find labels of recipe failed: %w", err)
	}
	if len(labelIDs) == 0 {
		return nil, nil
	}
	labelIDs, err := lockLabels(tx, labelIDs)
	if err != nil {
		return nil, err
	}
	if err := tx.Where("label_id IN ? AND recipe_id = ?", labelIDs, recipeID).Delete(&model.LabelRecipe{}).Error; err != nil {
		return nil, fmt.Errorf("detach recipe from labels failed: %w", err)
	}

	var deletedIDs []uint
	for _, labelID := range labelIDs {
		deleted, err := deleteIfEmpty(tx, labelID)
		if err != nil {
			return nil, err
		}
		if deleted {
			deletedIDs = append(deletedIDs, labelID)
		}
	}
	return deletedIDs, nil
}

// lockLabels takes row locks on the given labels in id order, the same lock
// AttachByTitle holds while linking, and returns the ids that still exist.
func lockLabels(tx *gorm.DB, labelIDs []uint) ([]uint, error) {
	var locked []uint
	if err := tx.Model(&model.Label{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", labelIDs).
		Order("id ASC").
		Pluck("id", &locked).Error; err != nil {
		return nil, fmt.Errorf("lock labels failed: %w", err)
	}
	return locked, nil
}

// deleteIfEmpty expects the caller to hold the label's row lock.
func deleteIfEmpty(tx *gorm.DB, labelID uint) (bool, error) {
	var remaining int64
	if err := tx.Model(&model.LabelRecipe{}).Where("label_id = ?", labelID).Count(&remaining).Error; err != nil {
		return false, fmt.Errorf("count label recipes failed: %w", err)
	}
	if remaining > 0 {
		return false, nil
	}
	if err := tx.Delete(&model.Label{}, labelID).Error; err != nil {
		return false, fmt.Errorf("delete empty label failed: %w", err)
	}
	return true, nil
}
