package domain

import (
	"strings"
	"time"
)

// AppData content types.
const (
	TypePost     = "post"
	TypeComment  = "comment"
	TypeReferral = "referral"
)

// AccessPublic marks AppData readable without authentication.
const AccessPublic = "public"

// AppData is a piece of tenant content: a post, a comment, a referral or any
// other typed record.
type AppData struct {
	Name        string         `json:"name,omitempty"`
	Type        string         `json:"type,omitempty"`
	Access      string         `json:"access,omitempty"`
	Owner       string         `json:"owner,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"createdAt,omitzero"`
	UpdatedAt   time.Time      `json:"updatedAt,omitzero"`
	OwnerMember *AppMember     `json:"ownerMember,omitempty"`
}

// DataString returns a string stored under key in Data.
func (d AppData) DataString(key string) string {
	if d.Data == nil {
		return ""
	}
	s, _ := d.Data[key].(string)
	return s
}

// Public returns a copy safe to expose without authentication. An included
// owner is reduced to its public projection.
func (d AppData) Public() AppData {
	out := d
	if d.OwnerMember != nil {
		owner := d.OwnerMember.Public()
		out.OwnerMember = &owner
	}
	return out
}

// AppMember is a tenant user.
type AppMember struct {
	UserName      string         `json:"userName,omitempty"`
	Password      string         `json:"password,omitempty"`
	FirstName     string         `json:"firstName,omitempty"`
	LastName      string         `json:"lastName,omitempty"`
	PreferredName string         `json:"preferredName,omitempty"`
	Role          string         `json:"role,omitempty"`
	Email         string         `json:"email,omitempty"`
	Phone         string         `json:"phone,omitempty"`
	MemberData    map[string]any `json:"memberData,omitempty"`
	CreatedAt     time.Time      `json:"createdAt,omitzero"`
	UpdatedAt     time.Time      `json:"updatedAt,omitzero"`
	Posts         []AppData      `json:"posts,omitempty"`
}

// DisplayName is the preferred name, else "first last".
func (m AppMember) DisplayName() string {
	if m.PreferredName != "" {
		return m.PreferredName
	}
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// PushToken returns the registered device token, if any.
func (m AppMember) PushToken() string {
	s, _ := m.MemberData["pushToken"].(string)
	return s
}

// PushType returns the registered device platform, if any.
func (m AppMember) PushType() string {
	s, _ := m.MemberData["pushType"].(string)
	return s
}

// Public returns a copy safe to expose without authentication. Related
// posts are dropped.
func (m AppMember) Public() AppMember {
	out := m
	out.Password = ""
	out.Posts = nil
	if m.MemberData != nil {
		out.MemberData = make(map[string]any, len(m.MemberData))
		for k, v := range m.MemberData {
			if k == "pushToken" || k == "pushType" {
				continue
			}
			out.MemberData[k] = v
		}
	}
	return out
}

// PhoneDigits returns the phone number with every non-digit removed.
func (m AppMember) PhoneDigits() string {
	var b strings.Builder
	for _, r := range m.Phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AppInfo is a versioned site configuration. Exactly one record is the
// editable draft; publishing moves the previous live record aside.
type AppInfo struct {
	Name          string         `json:"name,omitempty"`
	Published     *bool          `json:"published,omitempty"`
	Draft         *bool          `json:"draft,omitempty"`
	Previous      *bool          `json:"previous,omitempty"`
	History       *bool          `json:"history,omitempty"`
	PublishedDate time.Time      `json:"publishedDate,omitzero"`
	Info          map[string]any `json:"info,omitempty"`
}

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// Feature reports whether info.features[name] is true.
func (i AppInfo) Feature(name string) bool {
	features, _ := i.Info["features"].(map[string]any)
	enabled, _ := features[name].(bool)
	return enabled
}

// Title returns info.content.title.
func (i AppInfo) Title() string {
	content, _ := i.Info["content"].(map[string]any)
	title, _ := content["title"].(string)
	return title
}
