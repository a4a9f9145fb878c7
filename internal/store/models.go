package store

import "time"

type User struct {
	ID           string
	Username     string
	Email        string
	FullName     string
	IsActive     bool
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Group struct {
	ID          string
	Name        string
	Description string
	AdminID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GroupUpdate carries partial-update fields; nil means leave untouched.
type GroupUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type Item struct {
	ID          string
	Name        string
	Description string
	IsDone      bool
	UserID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemUpdate carries partial-update fields; nil means leave untouched.
type ItemUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsDone      *bool   `json:"is_done"`
}
