package backend

import (
	"net/url"
	"testing"

	// Packages
	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithEndpoint(t *testing.T) {
	tests := []struct {
		name      string
		endpoint  string
		wantErr   bool
		wantQuery map[string]string
	}{
		{
			name:     "http endpoint",
			endpoint: "http://localhost:9000",
			wantQuery: map[string]string{
				"endpoint":       "http://localhost:9000",
				"use_path_style": "true",
				"disable_https":  "true",
			},
		},
		{
			name:     "https endpoint",
			endpoint: "https://s3.example.com",
			wantQuery: map[string]string{
				"endpoint":       "https://s3.example.com",
				"use_path_style": "true",
			},
		},
		{
			name:     "invalid scheme",
			endpoint: "ftp://example.com",
			wantErr:  true,
		},
		{
			name:     "invalid URL",
			endpoint: "://invalid",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse("s3://bucket")
			require.NoError(t, err)
			o, err := apply(u, WithEndpoint(tt.endpoint))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			q := o.url.Query()
			for k, v := range tt.wantQuery {
				assert.Equal(t, v, q.Get(k), k)
			}
			if _, ok := tt.wantQuery["disable_https"]; !ok {
				assert.Empty(t, q.Get("disable_https"))
			}
		})
	}
}

func TestWithCreateDir(t *testing.T) {
	assert := assert.New(t)

	u, _ := url.Parse("file://media/tmp/media")
	o, err := apply(u, WithCreateDir())
	assert.NoError(err)
	assert.Equal("true", o.url.Query().Get("create_dir"))

	u, _ = url.Parse("mem://scratch")
	o, err = apply(u, WithCreateDir())
	assert.NoError(err)
	assert.Empty(o.url.Query().Get("create_dir"))
}

func TestResolveAWSConfig(t *testing.T) {
	assert := assert.New(t)

	u, _ := url.Parse("s3://bucket?region=eu-west-2")
	o, err := apply(u,
		WithAWSConfig(aws.Config{Region: "us-east-1"}),
		WithEndpoint("http://localhost:9000"),
		WithAnonymous(),
	)
	assert.NoError(err)

	cfg := o.resolveAWSConfig()
	assert.Equal("eu-west-2", cfg.Region)
	if assert.NotNil(cfg.BaseEndpoint) {
		assert.Equal("http://localhost:9000", *cfg.BaseEndpoint)
	}
	assert.IsType(aws.AnonymousCredentials{}, cfg.Credentials)

	// The original config is not modified
	assert.Equal("us-east-1", o.awsConfig.Region)
	assert.Nil(o.awsConfig.BaseEndpoint)
}
