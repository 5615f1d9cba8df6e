package config

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetters(t *testing.T) {
	c := map[string]string{
		"PORT":      "9090",
		"BAD_INT":   "nine",
		"FLAG":      "yes",
		"ORIGINS":   "https://a.example, ,https://b.example",
		"TTL_HOURS": "2",
	}

	assert.Equal(t, "9090", GetString(c, "PORT", "8080"))
	assert.Equal(t, "fallback", GetString(c, "MISSING", "fallback"))
	assert.Equal(t, 7, GetInt(c, "BAD_INT", 7))
	assert.True(t, GetBool(c, "FLAG", false))
	assert.False(t, GetBool(c, "MISSING", false))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, GetStrings(c, "ORIGINS", nil))
	assert.Equal(t, 2*time.Hour, GetDuration(c, "TTL_HOURS", 24, time.Hour))
	assert.Equal(t, "d", GetString(nil, "ANY", "d"))
}

func TestLoadDefaults(t *testing.T) {
	settings, err := Load(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, settings.Environment)
	assert.True(t, settings.IsDevelopment())
	assert.Equal(t, "8080", settings.Server.Port)
	assert.Equal(t, DBTypePostgres, settings.Database.Type)
	assert.Equal(t, devJWTSecret, settings.Auth.JWTSecret)
	assert.Equal(t, int64(10<<20), settings.Upload.MaxFileSize)
	assert.False(t, settings.SMTP.Enabled())
	assert.False(t, settings.Twilio.Enabled())
}

func TestLoadNodeEnvAlias(t *testing.T) {
	_, err := Load(map[string]string{"NODE_ENV": "production"})
	require.Error(t, err, "production without JWT_SECRET must fail")

	settings, err := Load(map[string]string{
		"NODE_ENV":   "production",
		"JWT_SECRET": "0123456789abcdef0123",
	})
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, settings.Environment)
	assert.False(t, settings.IsDevelopment())
}

func TestLoadRejectsInvalidCombinations(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown db type", map[string]string{"DB_TYPE": "oracle"}},
		{"short secret", map[string]string{"JWT_SECRET": "short"}},
		{"s3 without bucket", map[string]string{"STORAGE_DRIVER": "s3"}},
		{"zero upload size", map[string]string{"UPLOAD_MAX_FILE_SIZE_MB": "0"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.env)
			assert.Error(t, err)
		})
	}
}

type fakeSSM struct {
	pages [][]types.Parameter
	calls int
}

func (f *fakeSSM) GetParametersByPath(_ context.Context, _ *ssm.GetParametersByPathInput, _ ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	out := &ssm.GetParametersByPathOutput{Parameters: f.pages[f.calls]}
	f.calls++
	if f.calls < len(f.pages) {
		out.NextToken = aws.String("next")
	}
	return out, nil
}

func TestOverlayFromSSM(t *testing.T) {
	client := &fakeSSM{pages: [][]types.Parameter{
		{{Name: aws.String("/realestate/prod/JWT_SECRET"), Value: aws.String("from-ssm-secret-value")}},
		{{Name: aws.String("/realestate/prod/db_password"), Value: aws.String("pw")}, {Name: aws.String("/realestate/prod/PORT"), Value: aws.String("1")}},
	}}
	c := map[string]string{"PORT": "8080"}

	require.NoError(t, overlayFromSSM(context.Background(), client, "/realestate/prod", c))

	assert.Equal(t, 2, client.calls)
	assert.Equal(t, "from-ssm-secret-value", c["JWT_SECRET"])
	assert.Equal(t, "pw", c["DB_PASSWORD"])
	assert.Equal(t, "8080", c["PORT"], "environment must win over ssm")
}
