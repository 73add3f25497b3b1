package models

import "time"

// Credential is the serialized cookie set of a browser session that passed
// the challenge on one host.
type Credential struct {
	Cookie    string
	Host      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (c Credential) Valid(now time.Time) bool {
	return c.Cookie != "" && now.Before(c.ExpiresAt)
}

// CookieDocument is the persisted shape of a Credential, one per host.
type CookieDocument struct {
	Cookie    string `json:"cookie"`
	ExpiresAt int64  `json:"expiresAt"`
	CreatedAt int64  `json:"createdAt"`
}

func (c Credential) Document() CookieDocument {
	return CookieDocument{
		Cookie:    c.Cookie,
		ExpiresAt: c.ExpiresAt.UnixMilli(),
		CreatedAt: c.IssuedAt.UnixMilli(),
	}
}

func (d CookieDocument) Credential(host string) Credential {
	return Credential{
		Cookie:    d.Cookie,
		Host:      host,
		IssuedAt:  time.UnixMilli(d.CreatedAt),
		ExpiresAt: time.UnixMilli(d.ExpiresAt),
	}
}
