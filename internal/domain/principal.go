package domain

// Principal is the authenticated caller of a tenant-scoped request.
type Principal struct {
	ID    string
	Email string
	Name  string
}

// Key is the identity used for activity tracking and member lookup: the
// email when present, else the id.
func (p Principal) Key() string {
	if p.Email != "" {
		return p.Email
	}
	return p.ID
}
