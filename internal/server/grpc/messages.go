package grpc

import (
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	minPasswordLength = 6
	// bcrypt ignores everything past 72 bytes
	maxPasswordLength = 72
	maxEmailLength    = 256
	maxFullNameLength = 200
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, maxEmailLength), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLength, maxPasswordLength)),
		validation.Field(&r.FullName, validation.Length(0, maxFullNameLength)),
	)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

type LogoutRequest struct{}

type MeRequest struct{}

type ListUsersRequest struct{}

type AuthResponse struct {
	UserID       string   `json:"userId"`
	Email        string   `json:"email"`
	FullName     string   `json:"fullName"`
	Token        string   `json:"token"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	TokenType    string   `json:"tokenType"`
	ExpiresIn    int64    `json:"expiresIn"`
	Roles        []string `json:"roles"`
}

type LogoutResponse struct {
	Message string `json:"message"`
}

type UserResponse struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"fullName"`
	Roles    []string `json:"roles"`
}

type ListUsersResponse struct {
	Users []UserResponse `json:"users"`
}

func toUserResponse(u services.UserResult) UserResponse {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return UserResponse{ID: u.ID, Email: u.Email, FullName: u.FullName, Roles: roles}
}
