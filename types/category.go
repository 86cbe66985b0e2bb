package types

import "time"

// Category is a flat label posts can belong to. Names are stored trimmed
// and are unique across all categories.
type Category struct {
	// ID is the unique identifier of the category.
	ID int `json:"id" db:"id"`

	// Name is the unique, trimmed display name of the category.
	Name string `json:"name" db:"name"`

	// CreatedAt is the timestamp at which the category was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the category.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
