package models

import "time"

// UserInfo is the account/store identity returned by GET /me.
type UserInfo struct {
	Email       string     `json:"email"`
	ShopDomain  string     `json:"shop_domain"`
	Status      string     `json:"status"`
	InstalledAt *time.Time `json:"installed_at,omitempty"`
}
