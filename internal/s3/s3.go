// Package s3 archives the frames that confirmed fusion alerts in a MinIO
// bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrEvidenceNotFound = errors.New("evidence not found")

type Client struct {
	client *minio.Client
	bucket string
}

func NewMinioClient(endpoint, accessKey, secretKey, bucket string, secure bool) (*Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Client{client: client, bucket: bucket}, nil
}

func (c *Client) EnsureBucketExists(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

func objectName(alertID string) string {
	return fmt.Sprintf("evidence/%s.jpg", alertID)
}

// PutEvidence stores the JPEG frame for alertID.
func (c *Client) PutEvidence(ctx context.Context, alertID string, frame []byte) error {
	_, err := c.client.PutObject(
		ctx,
		c.bucket,
		objectName(alertID),
		bytes.NewReader(frame),
		int64(len(frame)),
		minio.PutObjectOptions{
			ContentType: "image/jpeg",
			UserMetadata: map[string]string{
				"alert-id": alertID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("upload evidence %s: %w", alertID, err)
	}
	return nil
}

// GetEvidence returns the stored frame for alertID.
func (c *Client) GetEvidence(ctx context.Context, alertID string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, objectName(alertID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get evidence %s: %w", alertID, err)
	}
	defer obj.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, obj); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrEvidenceNotFound
		}
		return nil, fmt.Errorf("read evidence %s: %w", alertID, err)
	}
	return buf.Bytes(), nil
}
