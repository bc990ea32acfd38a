package repository

import (
	"fmt"

	"gorm.io/gorm"

	"recipebox/internal/model"
)

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.User{}, &model.Recipe{}, &model.Label{}, &model.LabelRecipe{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}
	return nil
}
