package objectclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/markdave123-py/parley/internal/config"
)

func TestPublicURL(t *testing.T) {
	assert.Equal(t,
		"https://parley-assets.s3.eu-central-1.amazonaws.com/branding/logo.png",
		PublicURL("", "eu-central-1", "parley-assets", "/branding/logo.png", false))

	assert.Equal(t,
		"http://localhost:9000/parley-assets/agents/a1.webp",
		PublicURL("http://localhost:9000", "us-east-1", "parley-assets", "agents/a1.webp", true))

	assert.Equal(t,
		"https://parley-assets.storage.example.com/agents/a1.webp",
		PublicURL("https://storage.example.com", "auto", "parley-assets", "agents/a1.webp", false))
}

func TestNewS3ClientRequiresCredentials(t *testing.T) {
	_, err := NewS3Client(context.Background(), &cfg.Config{AwsRegion: "us-east-2", BucketName: "b"})
	require.Error(t, err)

	_, err = NewS3Client(context.Background(), &cfg.Config{AwsAccessKey: "k", AwsSecretKey: "s", AwsRegion: "us-east-2"})
	require.Error(t, err)
}
