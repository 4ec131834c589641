package domain

import "time"

// Domain maps a tenant hostname to the database holding its content.
type Domain struct {
	Hostname  string    `json:"hostname"`
	Database  string    `json:"database"`
	Redirect  string    `json:"redirect,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// DomainFilter narrows directory listings.
type DomainFilter struct {
	Active *bool
	Limit  int
	Offset int
}

// DomainPatch carries a partial directory update.
type DomainPatch struct {
	Database *string `json:"database,omitempty"`
	Redirect *string `json:"redirect,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

// Empty reports whether the patch sets nothing.
func (p DomainPatch) Empty() bool {
	return p.Database == nil && p.Redirect == nil && p.Active == nil
}
