package model

import "time"

type Label struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"not null;uniqueIndex:idx_label_account_title,priority:1" json:"account_id"`
	Title     string    `gorm:"size:128;not null;uniqueIndex:idx_label_account_title,priority:2" json:"title"`
	RecipeIDs []uint    `gorm:"-" json:"recipes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LabelRecipe links a label to one of its recipes.
type LabelRecipe struct {
	LabelID  uint `gorm:"primaryKey;autoIncrement:false"`
	RecipeID uint `gorm:"primaryKey;autoIncrement:false;index"`
}

func (LabelRecipe) TableName() string {
	return "label_recipes"
}
