package domain

type Guild struct {
	ID          string
	Name        string
	MemberCount int
}

type Member struct {
	UserID          string
	Name            string
	IsAdministrator bool
}
