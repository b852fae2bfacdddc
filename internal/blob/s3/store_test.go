package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"contractgen/internal/blob/core"
)

// fakeBucket is a path-style S3 subset: HEAD, GET, PUT, DELETE and
// ListObjectsV2 for one bucket.
type fakeBucket struct {
	mu   sync.Mutex
	objs map[string]fakeObject
}

type fakeObject struct {
	body        []byte
	contentType string
}

func respond(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: header}
}

func (f *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objs {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objs[k].body))
		}
		b.WriteString("</ListBucketResult>")
		return respond(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}}), nil
	}
	switch req.Method {
	case http.MethodHead, http.MethodGet:
		obj, ok := f.objs[key]
		if !ok {
			return respond(http.StatusNotFound, "", nil), nil
		}
		h := http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Etag":           {`"etag-` + key + `"`},
			"Last-Modified":  {time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)},
		}
		if req.Method == http.MethodHead {
			return respond(http.StatusOK, "", h), nil
		}
		return respond(http.StatusOK, string(obj.body), h), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeAWSChunked(body); ok {
			body = dec
		}
		f.objs[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type")}
		return respond(http.StatusOK, "", http.Header{"Etag": {`"etag"`}}), nil
	case http.MethodDelete:
		delete(f.objs, key)
		return respond(http.StatusNoContent, "", nil), nil
	}
	return respond(http.StatusNotImplemented, "", nil), nil
}

// decodeAWSChunked unwraps a single-chunk aws-chunked payload.
func decodeAWSChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 || parts[2] != "0" {
		return nil, false
	}
	size := parts[0]
	if i := strings.IndexByte(size, ';'); i >= 0 {
		size = size[:i]
	}
	n, err := strconv.ParseInt(size, 16, 64)
	if err != nil || int64(len(parts[1])) != n {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newFakeStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), Config{
		Bucket:          "contracts",
		Endpoint:        "https://fake.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: &fakeBucket{objs: map[string]fakeObject{}}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := newFakeStore(t)
	ctx := context.Background()
	key := "contracts/t1/abc/v1.json"
	info, err := s.Put(ctx, key, bytes.NewReader([]byte(`{"v":1}`)), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Key != key || info.ContentType != "application/json" || info.Size != 7 {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != `{"v":1}` {
		t.Fatalf("unexpected body %q", data)
	}
	list, err := s.List(ctx, "contracts/t1/")
	if err != nil || len(list) != 1 || list[0].Key != key {
		t.Fatalf("List: %v %+v", err, list)
	}
	if ok, err := s.Delete(ctx, key); err != nil || !ok {
		t.Fatalf("Delete: %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, key); err != nil || ok {
		t.Fatalf("second Delete should report missing: %v %v", ok, err)
	}
}

func TestStoreMissingKeys(t *testing.T) {
	s := newFakeStore(t)
	ctx := context.Background()
	if _, err := s.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Head: expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Get: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Put(ctx, " ", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
	s := newFakeStore(t)
	if s.Driver() != core.DriverS3 || s.Bucket() != "contracts" {
		t.Fatalf("unexpected driver/bucket %s %s", s.Driver(), s.Bucket())
	}
}

func TestDecodeAWSChunked(t *testing.T) {
	if b, ok := decodeAWSChunked([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:abc\r\n\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected hello, got %q %v", b, ok)
	}
	if _, ok := decodeAWSChunked([]byte("plain body")); ok {
		t.Fatalf("plain body must not decode")
	}
}
