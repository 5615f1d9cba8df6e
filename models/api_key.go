package models

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	PermAll            = "*"
	PermProjectsRead   = "projects:read"
	PermProjectsWrite  = "projects:write"
	PermTagsRead       = "tags:read"
	PermTagsWrite      = "tags:write"
	PermContactsRead   = "contacts:read"
	PermContactsWrite  = "contacts:write"
	PermUploadWrite    = "upload:write"
	PermStatisticsRead = "statistics:read"
	PermUsersManage    = "users:manage"
	PermSystemManage   = "system:manage"
)

// PermissionSet is a parsed permission list. "*" grants everything and "projects:*"
// grants every action on projects.
type PermissionSet map[string]struct{}

func NewPermissionSet(perms ...string) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		if p = strings.TrimSpace(p); p != "" {
			set[p] = struct{}{}
		}
	}
	return set
}

func (s PermissionSet) Has(perm string) bool {
	if _, ok := s[PermAll]; ok {
		return true
	}
	if _, ok := s[perm]; ok {
		return true
	}
	if resource, _, found := strings.Cut(perm, ":"); found {
		_, ok := s[resource+":*"]
		return ok
	}
	return false
}

func (s PermissionSet) List() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}

// IPAllowlist holds addresses and CIDR ranges. An empty list allows every address.
type IPAllowlist []netip.Prefix

func ParseIPAllowlist(entries []string) (IPAllowlist, error) {
	list := make(IPAllowlist, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("parse allowed ip %q: %w", entry, err)
			}
			list = append(list, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("parse allowed ip %q: %w", entry, err)
		}
		list = append(list, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return list, nil
}

func (l IPAllowlist) Allows(ip string) bool {
	if len(l) == 0 {
		return true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range l {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// APIKey is a long lived credential. Only the sha256 of the key is stored.
type APIKey struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string         `json:"name" gorm:"type:varchar(100);not null"`
	KeyHash     string         `json:"-" gorm:"type:varchar(64);not null;uniqueIndex"`
	KeyPrefix   string         `json:"keyPrefix" gorm:"type:varchar(16);not null"`
	Permissions datatypes.JSON `json:"permissions"`
	AllowedIPs  datatypes.JSON `json:"allowedIps"`
	IsActive    bool           `json:"isActive" gorm:"not null;default:true"`
	ExpiresAt   *time.Time     `json:"expiresAt,omitempty"`
	LastUsedAt  *time.Time     `json:"lastUsedAt,omitempty"`
	CreatedBy   *uuid.UUID     `json:"createdBy,omitempty" gorm:"type:uuid"`
	CreatedAt   time.Time      `json:"createdAt"`

	permissions PermissionSet
	allowedIPs  IPAllowlist
}

func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	return nil
}

// AfterFind parses the JSON columns once so request handling only does set lookups.
func (k *APIKey) AfterFind(tx *gorm.DB) error {
	return k.parse()
}

func (k *APIKey) parse() error {
	var perms []string
	if len(k.Permissions) > 0 {
		if err := json.Unmarshal(k.Permissions, &perms); err != nil {
			return fmt.Errorf("api key %s permissions: %w", k.ID, err)
		}
	}
	var ips []string
	if len(k.AllowedIPs) > 0 {
		if err := json.Unmarshal(k.AllowedIPs, &ips); err != nil {
			return fmt.Errorf("api key %s allowed ips: %w", k.ID, err)
		}
	}
	allowlist, err := ParseIPAllowlist(ips)
	if err != nil {
		return err
	}
	k.permissions = NewPermissionSet(perms...)
	k.allowedIPs = allowlist
	return nil
}

func (k *APIKey) PermissionSet() PermissionSet {
	if k.permissions == nil {
		_ = k.parse()
	}
	return k.permissions
}

func (k *APIKey) IPAllowlist() IPAllowlist {
	if k.allowedIPs == nil {
		_ = k.parse()
	}
	return k.allowedIPs
}

func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}
