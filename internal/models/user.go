package models

// Roles an account can hold. Anything else is coerced to RoleCustomer on
// creation.
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// UserColumns is the header row of the accounts tab, in storage order.
var UserColumns = []string{
	"email", "name", "password_hash", "role",
	"is_active", "created_at", "reset_token", "reset_expires",
}

// User is one account row from the accounts tab. Email is the primary key,
// stored lowercase and trimmed. Timestamps and the reset expiry are RFC 3339
// strings because every cell in the backend is text.
type User struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
	IsActive     bool   `json:"is_active"`
	CreatedAt    string `json:"created_at"`
	ResetToken   string `json:"-"`
	ResetExpires string `json:"-"`
}

// UserFromRow builds a User from a sheet row keyed by UserColumns.
func UserFromRow(row Row) *User {
	active := row["is_active"]
	return &User{
		Email:        row["email"],
		Name:         row["name"],
		PasswordHash: row["password_hash"],
		Role:         row["role"],
		IsActive:     active == "TRUE" || active == "True" || active == "true" || active == "1",
		CreatedAt:    row["created_at"],
		ResetToken:   row["reset_token"],
		ResetExpires: row["reset_expires"],
	}
}

// ToCells serializes the user back into a sheet row in UserColumns order.
func (u *User) ToCells() []string {
	active := "FALSE"
	if u.IsActive {
		active = "TRUE"
	}
	return []string{
		u.Email, u.Name, u.PasswordHash, u.Role,
		active, u.CreatedAt, u.ResetToken, u.ResetExpires,
	}
}

// Clone returns a copy so callers can mutate without touching cached state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
