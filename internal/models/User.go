package models

import "gorm.io/gorm"

const (
	RoleClient     = "client"
	RoleLandscaper = "landscaper"
	RoleAdmin      = "admin"
)

// User is provisioned by the auth service; the tracker reads it for
// display names on the live feed.
type User struct {
	gorm.Model
	Name  string `json:"name"`
	Email string `json:"email" gorm:"unique"`
	Phone string `json:"phone"`
	Role  string `json:"role"` // "client", "landscaper", "admin"
}
