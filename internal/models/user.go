package models

import "time"

type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleResponder Role = "responder"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleCitizen || r == RoleResponder || r == RoleAdmin
}

// User - учетная запись
type User struct {
	ID            int64          `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	Email         string         `db:"email" json:"email"`
	PasswordHash  string         `db:"password_hash" json:"-"`
	Role          Role           `db:"role" json:"role"`
	ResponderType *ResponderType `db:"responder_type" json:"responder_type,omitempty"`
	Contact
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Contact - контактные данные профиля, пустая строка означает "не указано"
type Contact struct {
	PhoneNumber                  string `db:"phone_number" json:"phone_number"`
	Address                      string `db:"address" json:"address"`
	EmergencyContactName         string `db:"emergency_contact_name" json:"emergency_contact_name"`
	EmergencyContactPhone        string `db:"emergency_contact_phone" json:"emergency_contact_phone"`
	EmergencyContactRelationship string `db:"emergency_contact_relationship" json:"emergency_contact_relationship"`
}

// Principal - аутентифицированный пользователь, извлеченный из токена
type Principal struct {
	UserID        int64
	Role          Role
	ResponderType ResponderType
}

// ProfileUpdate - изменяемые поля профиля, nil означает "не менять"
type ProfileUpdate struct {
	Name     *string
	Email    *string
	Password *string

	PhoneNumber                  *string
	Address                      *string
	EmergencyContactName         *string
	EmergencyContactPhone        *string
	EmergencyContactRelationship *string
}

// ResponderUpdate - изменения учетной записи службы, которые вносит администратор
type ResponderUpdate struct {
	Name          *string
	Email         *string
	Password      *string
	ResponderType *ResponderType
}
