package model

const (
	RoleTutor      = "tutor"
	RoleInstructor = "instructor"
)

type User struct {
	ID           string `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	Role         string `db:"role" json:"role"`
	PasswordHash string `db:"password_hash" json:"-"`
	Ctime        int64  `db:"ctime" json:"ctime"`
}

func (u User) IsInstructor() bool {
	return u.Role == RoleInstructor
}

func (u User) CanAssess() bool {
	return u.Role == RoleTutor || u.Role == RoleInstructor
}
