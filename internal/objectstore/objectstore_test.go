package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeGetter struct {
	objects map[string][]byte
	calls   []string
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	id := *in.Bucket + "/" + *in.Key
	f.calls = append(f.calls, id)
	data, ok := f.objects[id]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestGetReadsObject(t *testing.T) {
	client := &fakeGetter{objects: map[string][]byte{"b/k": []byte("payload")}}
	data, err := Get(context.Background(), client, "b", "k", 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected data %q", data)
	}
}

func TestGetMissingObject(t *testing.T) {
	client := &fakeGetter{objects: map[string][]byte{}}
	_, err := Get(context.Background(), client, "b", "missing", 0)
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

type apiErrorGetter struct {
	err error
}

func (a apiErrorGetter) GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, a.err
}

func TestGetClassifiesGenericAPIErrors(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{"NoSuchKey", ErrObjectNotFound},
		{"NotFound", ErrObjectNotFound},
		{"AccessDenied", ErrAccessDenied},
		{"SignatureDoesNotMatch", ErrAccessDenied},
	}
	for _, tc := range cases {
		client := apiErrorGetter{err: &smithy.GenericAPIError{Code: tc.code, Message: "nope"}}
		_, err := Get(context.Background(), client, "b", "k", 0)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.code, tc.want, err)
		}
	}

	client := apiErrorGetter{err: &smithy.GenericAPIError{Code: "SlowDown"}}
	_, err := Get(context.Background(), client, "b", "k", 0)
	if errors.Is(err, ErrObjectNotFound) || errors.Is(err, ErrAccessDenied) {
		t.Fatalf("unexpected classification of throttling: %v", err)
	}
}

func TestGetEnforcesLimit(t *testing.T) {
	client := &fakeGetter{objects: map[string][]byte{"b/k": bytes.Repeat([]byte("x"), 10)}}
	if _, err := Get(context.Background(), client, "b", "k", 5); err == nil {
		t.Fatal("expected size limit error")
	}
	if _, err := Get(context.Background(), client, "b", "k", 10); err != nil {
		t.Fatalf("expected exact limit to pass: %v", err)
	}
}

func TestParseURI(t *testing.T) {
	bucket, key, ok := ParseURI("s3://keys/cis/mozilliansorg.pem")
	if !ok || bucket != "keys" || key != "cis/mozilliansorg.pem" {
		t.Fatalf("unexpected parse %q %q %v", bucket, key, ok)
	}
	for _, bad := range []string{"", "s3://", "s3://bucket", "s3:///key", "/tmp/key.pem"} {
		if _, _, ok := ParseURI(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestParseHTTPURL(t *testing.T) {
	cases := []struct {
		url         string
		bucket, key string
		ok          bool
	}{
		{"https://s3.amazonaws.com/mozillians/media/u1.jpg", "mozillians", "media/u1.jpg", true},
		{"https://mozillians.s3.amazonaws.com/media/u1.jpg", "mozillians", "media/u1.jpg", true},
		{"https://s3-us-west-2.amazonaws.com/b/k.jpg", "b", "k.jpg", true},
		{"https://s3.amazonaws.com/bucket-only", "", "", false},
		{"https://example.com/a/b", "", "", false},
		{"not a url", "", "", false},
	}
	for _, tc := range cases {
		bucket, key, ok := ParseHTTPURL(tc.url)
		if bucket != tc.bucket || key != tc.key || ok != tc.ok {
			t.Fatalf("ParseHTTPURL(%q) = %q %q %v, want %q %q %v", tc.url, bucket, key, ok, tc.bucket, tc.key, tc.ok)
		}
	}
}

func TestNewClientRequiresRegion(t *testing.T) {
	if _, err := NewClient(context.Background(), Options{}); err == nil {
		t.Fatal("expected error without region")
	}
}

func TestNewClientWithStaticCredentials(t *testing.T) {
	client, err := NewClient(context.Background(), Options{
		Region:          "us-west-2",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "access",
		SecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client == nil {
		t.Fatal("expected client")
	}
}
