package domain

import "time"

// User se crea la primera vez que vemos a un autor. Los timestamps los
// actualiza el cooldown; HomeServerID lo fija el comando setserver.
type User struct {
	ID              string
	Name            string
	LastCommandTime *time.Time
	LastHookTime    *time.Time
	HomeServerID    string
}

func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.LastCommandTime != nil {
		t := *u.LastCommandTime
		out.LastCommandTime = &t
	}
	if u.LastHookTime != nil {
		t := *u.LastHookTime
		out.LastHookTime = &t
	}
	return &out
}

type Server struct {
	ID   string
	Name string
}
