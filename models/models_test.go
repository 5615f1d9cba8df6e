package models

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every pooled connection to :memory: would otherwise see its own empty database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, Migrate(db))
	return db
}

func TestParseFeatures(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{"empty column", "", []string{}, false},
		{"null", "null", []string{}, false},
		{"list", `["pool","gym"]`, []string{"pool", "gym"}, false},
		{"whitespace", `  ["a"] `, []string{"a"}, false},
		{"malformed", `["pool",`, []string{}, true},
		{"wrong shape", `{"a":1}`, []string{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseFeatures([]byte(tc.raw))
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEncodeFeatures(t *testing.T) {
	assert.Equal(t, "[]", string(EncodeFeatures(nil)))

	got, err := ParseFeatures(EncodeFeatures([]string{"river view", "花园"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"river view", "花园"}, got)
}

func TestPermissionSet(t *testing.T) {
	set := NewPermissionSet("projects:*", "tags:read", " ")

	assert.True(t, set.Has(PermProjectsWrite))
	assert.True(t, set.Has(PermTagsRead))
	assert.False(t, set.Has(PermTagsWrite))
	assert.Len(t, set.List(), 2)

	assert.True(t, RoleAdmin.Permissions().Has(PermSystemManage))
	assert.True(t, RoleEditor.Permissions().Has(PermUploadWrite))
	assert.False(t, RoleEditor.Permissions().Has(PermUsersManage))
	assert.False(t, RoleViewer.Permissions().Has(PermProjectsWrite))
	assert.False(t, Role("ghost").Permissions().Has(PermProjectsRead))
}

func TestIPAllowlist(t *testing.T) {
	list, err := ParseIPAllowlist([]string{"10.0.0.0/8", "192.168.1.5", ""})
	require.NoError(t, err)

	assert.True(t, list.Allows("10.20.30.40"))
	assert.True(t, list.Allows("192.168.1.5"))
	assert.True(t, list.Allows("::ffff:192.168.1.5"))
	assert.False(t, list.Allows("192.168.1.6"))
	assert.False(t, list.Allows("not-an-ip"))

	empty, err := ParseIPAllowlist(nil)
	require.NoError(t, err)
	assert.True(t, empty.Allows("8.8.8.8"))

	_, err = ParseIPAllowlist([]string{"300.1.1.1"})
	assert.Error(t, err)
}

func TestAPIKeyParsedOnLoad(t *testing.T) {
	db := openTestDB(t)

	key := APIKey{
		Name:        "partner feed",
		KeyHash:     "abc123",
		KeyPrefix:   "rk_abc",
		Permissions: datatypes.JSON(`["projects:read"]`),
		AllowedIPs:  datatypes.JSON(`["127.0.0.1"]`),
	}
	require.NoError(t, db.Create(&key).Error)

	var loaded APIKey
	require.NoError(t, db.First(&loaded, "key_hash = ?", "abc123").Error)

	assert.True(t, loaded.PermissionSet().Has(PermProjectsRead))
	assert.False(t, loaded.PermissionSet().Has(PermProjectsWrite))
	assert.True(t, loaded.IPAllowlist().Allows("127.0.0.1"))
	assert.False(t, loaded.IPAllowlist().Allows("127.0.0.2"))
	assert.True(t, loaded.IsActive)
}

func TestStatusAndImageTypeValidation(t *testing.T) {
	assert.True(t, StatusOnSale.Valid())
	assert.False(t, ProjectStatus("demolished").Valid())
	assert.True(t, ImageFloorPlan.Valid())
	assert.False(t, ImageType("panorama").Valid())
	assert.True(t, RoleEditor.Valid())
}

func TestColumnMismatchReport(t *testing.T) {
	db := openTestDB(t)

	var out bytes.Buffer
	assert.Equal(t, 0, GenerateColumnMismatchReport(db, &out))

	require.NoError(t, db.Exec("ALTER TABLE projects ADD COLUMN legacy_price TEXT").Error)

	out.Reset()
	assert.Equal(t, 1, GenerateColumnMismatchReport(db, &out))
	assert.Contains(t, out.String(), "legacy_price")
}
