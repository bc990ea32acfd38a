package model

import "time"

const (
	FolderMain  = "main"
	FolderInbox = "inbox"
)

// Recipe is owned by exactly one account. FromUserID is set when another
// user sent the recipe into this account's inbox.
type Recipe struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AccountID    uint      `gorm:"not null;index:idx_recipe_account_title,priority:1" json:"account_id"`
	Title        string    `gorm:"size:255;not null;index:idx_recipe_account_title,priority:2" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	Yield        string    `gorm:"size:255" json:"yield"`
	ActiveTime   string    `gorm:"size:255" json:"active_time"`
	TotalTime    string    `gorm:"size:255" json:"total_time"`
	Source       string    `gorm:"size:255" json:"source"`
	URL          string    `gorm:"type:text" json:"url"`
	Notes        string    `gorm:"type:text" json:"notes"`
	Ingredients  string    `gorm:"type:text" json:"ingredients"`
	Instructions string    `gorm:"type:text" json:"instructions"`
	Image        *Image    `gorm:"serializer:json;type:text" json:"image,omitempty"`
	Folder       string    `gorm:"size:64;not null;default:main;index" json:"folder"`
	FromUserID   *uint     `gorm:"index" json:"-"`
	FromUser     *User     `gorm:"foreignKey:FromUserID" json:"from_user,omitempty"`
	Labels       []Label   `gorm:"-" json:"labels"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r *Recipe) ImageKey() string {
	if r.Image == nil {
		return ""
	}
	return r.Image.Key
}
