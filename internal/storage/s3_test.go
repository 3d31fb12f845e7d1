package storage

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
)

func TestS3Storage_SSEInput(t *testing.T) {
	cases := []struct {
		name       string
		cfg        S3Config
		wantSSE    types.ServerSideEncryption
		wantKeyNil bool
	}{
		{"none", S3Config{}, "", true},
		{"aes256", S3Config{SSE: "AES256"}, types.ServerSideEncryptionAes256, true},
		{"kms without key", S3Config{SSE: "aws:kms"}, types.ServerSideEncryptionAwsKms, true},
		{"kms with key", S3Config{SSE: "aws:kms", SSEKMSKeyID: "arn:aws:kms:key"}, types.ServerSideEncryptionAwsKms, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &S3Storage{cfg: tc.cfg}
			sse, key := s.sseInput()
			assert.Equal(t, tc.wantSSE, sse)
			assert.Equal(t, tc.wantKeyNil, key == nil)
		})
	}
}

func TestS3Storage_ObjectURL(t *testing.T) {
	pathStyle := &S3Storage{bucket: "bugs", cfg: S3Config{Endpoint: "http://minio:9000", ForcePathStyle: true}}
	assert.Equal(t, "http://minio:9000/bugs/screenshots/p/b/original.png", pathStyle.objectURL("screenshots/p/b/original.png"))

	aws := &S3Storage{bucket: "bugs", cfg: S3Config{Region: "us-east-1"}}
	assert.Equal(t, "https://bugs.s3.us-east-1.amazonaws.com/screenshots/p/b/original.png", aws.objectURL("screenshots/p/b/original.png"))
}
