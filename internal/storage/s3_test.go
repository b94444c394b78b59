package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var errNoSuchKey = errors.New("no such key")

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: make(map[string][]byte),
		meta:    make(map[string]map[string]string),
	}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.meta[key] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func TestS3StoreWriteRead(t *testing.T) {
	fake := newFakeS3()
	s := NewS3Store(fake, "reports", "inbox")

	content := []byte("quarterly numbers")
	n, err := s.WriteStream("/tmp/q3.csv", bytes.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(content)) {
		t.Errorf("Expected %d bytes, got %d", len(content), n)
	}
	if _, ok := fake.objects["reports/inbox/q3.csv"]; !ok {
		t.Fatalf("object not stored under prefix, have %v", fake.objects)
	}
	if got := fake.meta["reports/inbox/q3.csv"]["original-filename"]; got != "q3.csv" {
		t.Errorf("Expected original-filename q3.csv, got %q", got)
	}
	if !s.Has("q3.csv") {
		t.Error("expected Has to find the object")
	}

	size, r, err := s.ReadStream("inbox/q3.csv")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if size != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), size)
	}
	got, _ := io.ReadAll(r)
	if !bytes.Equal(got, content) {
		t.Errorf("Expected %q, got %q", content, got)
	}
}

func TestS3StoreMissing(t *testing.T) {
	s := NewS3Store(newFakeS3(), "reports", "")

	if s.Has("nope") {
		t.Error("expected Has to be false")
	}
	if _, _, err := s.ReadStream("nope"); !errors.Is(err, errNoSuchKey) {
		t.Errorf("Expected wrapped errNoSuchKey, got %v", err)
	}
}

func TestEnvCredentials(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	if _, err := envCredentials(context.Background()); err == nil {
		t.Error("expected error without credentials")
	}

	t.Setenv("AWS_ACCESS_KEY_ID", "AKID")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	t.Setenv("AWS_SESSION_TOKEN", "TOKEN")
	creds, err := envCredentials(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessKeyID != "AKID" || creds.SecretAccessKey != "SECRET" || creds.SessionToken != "TOKEN" {
		t.Errorf("unexpected credentials %+v", creds)
	}
}

func TestNewS3Client(t *testing.T) {
	c := NewS3Client(S3Config{Region: "us-east-1", Endpoint: "http://127.0.0.1:9000", UsePathStyle: true})
	if c == nil {
		t.Fatal("expected client")
	}
	o := c.Options()
	if o.Region != "us-east-1" || !o.UsePathStyle || aws.ToString(o.BaseEndpoint) != "http://127.0.0.1:9000" {
		t.Errorf("unexpected options %+v", o)
	}
}
