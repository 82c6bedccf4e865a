package models

import (
	"time"
)

// User model. Registration and login live in the auth service; the wallet
// side only needs the directory entry for ownership checks and OTP email
// resolution.
type User struct {
	ID        string    `bson:"_id" json:"id"`
	FullName  string    `bson:"fullname" json:"fullname"`
	Email     string    `bson:"email" json:"email"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
