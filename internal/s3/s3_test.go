package s3_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/s3"
)

func TestEvidenceRoundTrip(t *testing.T) {
	endpoint := os.Getenv("SENTINEL_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("SENTINEL_TEST_MINIO_ENDPOINT not set")
	}
	ctx := context.Background()

	client, err := s3.NewMinioClient(endpoint, os.Getenv("SENTINEL_TEST_MINIO_ACCESS_KEY"), os.Getenv("SENTINEL_TEST_MINIO_SECRET_KEY"), "sentinel-evidence-test", false)
	if err != nil {
		t.Fatalf("NewMinioClient() error: %v", err)
	}
	if err := client.EnsureBucketExists(ctx); err != nil {
		t.Fatalf("EnsureBucketExists() error: %v", err)
	}

	id := uuid.NewString()
	frame := bytes.Repeat([]byte{0xd8}, 4096)
	if err := client.PutEvidence(ctx, id, frame); err != nil {
		t.Fatalf("PutEvidence() error: %v", err)
	}
	got, err := client.GetEvidence(ctx, id)
	if err != nil {
		t.Fatalf("GetEvidence() error: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Fatalf("expected %d bytes back, got %d", len(frame), len(got))
	}

	if _, err := client.GetEvidence(ctx, uuid.NewString()); !errors.Is(err, s3.ErrEvidenceNotFound) {
		t.Fatalf("expected ErrEvidenceNotFound, got %v", err)
	}
}
