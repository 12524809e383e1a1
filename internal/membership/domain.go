package membership

import (
	"time"

	"github.com/google/uuid"

	"schoollib/internal/auth"
	"schoollib/internal/store"
)

// User is an account as exposed to callers. The credential hash lives in
// Credential and never leaves this package.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email" db:"email"`
	FullName  string    `json:"full_name" db:"full_name"`
	Role      auth.Role `json:"role" db:"role"`
	ClassName *string   `json:"class_name,omitempty" db:"class_name"`
	Phone     *string   `json:"phone,omitempty" db:"phone"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Credential represents a user's login credentials.
type Credential struct {
	UserID       uuid.UUID `db:"user_id"`
	PasswordHash string    `db:"password_hash"`
	Salt         string    `db:"salt"`
}

// NewUser is a candidate account.
type NewUser struct {
	Username  string    `json:"username" validate:"required,min=3,max=50"`
	Email     string    `json:"email" validate:"required,email"`
	FullName  string    `json:"full_name" validate:"required,min=2,max=100"`
	Role      auth.Role `json:"role" validate:"required,oneof=admin librarian teacher student"`
	ClassName *string   `json:"class_name" validate:"omitempty,max=50"`
	Phone     *string   `json:"phone" validate:"omitempty,max=20"`
	Password  string    `json:"password" validate:"required,min=6"`
}

// UserUpdate is a partial change; nil fields are left untouched.
type UserUpdate struct {
	Username  *string    `json:"username" validate:"omitempty,min=3,max=50"`
	Email     *string    `json:"email" validate:"omitempty,email"`
	FullName  *string    `json:"full_name" validate:"omitempty,min=2,max=100"`
	Role      *auth.Role `json:"role" validate:"omitempty,oneof=admin librarian teacher student"`
	ClassName *string    `json:"class_name" validate:"omitempty,max=50"`
	Phone     *string    `json:"phone" validate:"omitempty,max=20"`
	Active    *bool      `json:"active"`
	Password  *string    `json:"password" validate:"omitempty,min=6"`
}

// Filter narrows ListUsers. Search matches full name, email or username.
type Filter struct {
	Page      store.Page
	Role      *auth.Role
	ClassName *string
	Search    *string
}

type Stats struct {
	TotalUsers  int            `json:"total_users"`
	ActiveUsers int            `json:"active_users"`
	UsersByRole map[string]int `json:"users_by_role"`
}

// RowError reports one failed item of a bulk operation. Rows are 1-based.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type BulkResult struct {
	Created    int        `json:"created"`
	Duplicates int        `json:"duplicates"`
	Errors     []RowError `json:"errors"`
}

// UserRegisteredEvent is recorded when an account is created.
type UserRegisteredEvent struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Role     auth.Role `json:"role"`
}

// UserUpdatedEvent lists the fields changed by an update.
type UserUpdatedEvent struct {
	ID     uuid.UUID `json:"id"`
	Fields []string  `json:"fields"`
}

type UserDeletedEvent struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}
