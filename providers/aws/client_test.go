package aws

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"video-narrator/core/models"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeObjects struct {
	key  string
	body string
	err  error
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = *in.Key
	data, _ := io.ReadAll(in.Body)
	f.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	u := "https://" + *in.Bucket + ".example/" + *in.Key
	if in.ResponseContentDisposition != nil {
		u += "?download=1"
	}
	return &v4.PresignedHTTPRequest{URL: u, Method: "GET"}, nil
}

func TestPublishRecordsAllLocations(t *testing.T) {
	src := filepath.Join(t.TempDir(), "job-1_with_narration.mp4")
	if err := os.WriteFile(src, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	objects := &fakeObjects{}
	store := newStorage(StorageConfig{Bucket: "media", Region: "eu-west-1", Prefix: "/outputs/"}, objects, fakePresigner{}, nil)

	artifacts, err := store.Publish(context.Background(), src, "job-1")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if objects.key != "outputs/output_job-1.mp4" || objects.body != "mp4" {
		t.Fatalf("uploaded %q = %q", objects.key, objects.body)
	}

	job := &models.Job{Artifacts: artifacts}
	want := map[models.ArtifactType]string{
		models.ArtifactTypeObject:    "s3://media/outputs/output_job-1.mp4",
		models.ArtifactTypePublic:    "https://media.s3.eu-west-1.amazonaws.com/outputs/output_job-1.mp4",
		models.ArtifactTypeStreaming: "https://media.example/outputs/output_job-1.mp4",
		models.ArtifactTypeDownload:  "https://media.example/outputs/output_job-1.mp4?download=1",
	}
	for typ, uri := range want {
		if got, _ := job.Artifact(typ); got != uri {
			t.Errorf("%s = %q, want %q", typ, got, uri)
		}
	}
}

func TestPublishPropagatesUploadError(t *testing.T) {
	src := filepath.Join(t.TempDir(), "out.mp4")
	if err := os.WriteFile(src, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := newStorage(StorageConfig{Bucket: "media"}, &fakeObjects{err: errors.New("denied")}, fakePresigner{}, nil)
	if _, err := store.Publish(context.Background(), src, "job-2"); err == nil || !strings.Contains(err.Error(), "denied") {
		t.Fatalf("error = %v", err)
	}
}

func TestPublicBaseURLOverride(t *testing.T) {
	store := newStorage(StorageConfig{Bucket: "media", PublicBaseURL: "https://cdn.example.com/"}, &fakeObjects{}, fakePresigner{}, nil)
	if got := store.publicURL("output_x.mp4"); got != "https://cdn.example.com/output_x.mp4" {
		t.Fatalf("publicURL = %q", got)
	}
}

func TestParseReference(t *testing.T) {
	bucket, key, err := parseReference("s3://media/outputs/output_a.mp4")
	if err != nil || bucket != "media" || key != "outputs/output_a.mp4" {
		t.Fatalf("parseReference = %q %q %v", bucket, key, err)
	}
	for _, bad := range []string{"https://media/x", "s3://media", "s3:///key"} {
		if _, _, err := parseReference(bad); err == nil {
			t.Errorf("parseReference(%q) expected error", bad)
		}
	}
}
