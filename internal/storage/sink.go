// Package storage defines where catalog export documents are written to and
// read from: the local filesystem or an object store bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("export object not found")

// Sink stores export documents under string keys. All methods must be safe
// for concurrent use.
type Sink interface {
	// Put writes everything read from r to key, replacing any existing
	// object. Readers never observe a partially written object.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get opens key for reading. The caller closes the returned ReadCloser.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// HealthCheck verifies that the sink is reachable.
	HealthCheck(ctx context.Context) error
}

// Location is a parsed export destination.
type Location struct {
	Scheme string
	// Bucket is the bucket, or the container for azblob.
	Bucket string
	Key    string

	// S3 only. Credentials come from the URL userinfo, the rest from
	// query parameters.
	Region    string
	Endpoint  string
	PathStyle bool
	AccessKey string
	SecretKey string

	// AzureAccount is the storage account for azblob.
	AzureAccount string
}

// ParseLocation parses an export destination. Supported forms:
//
//	/path/to/export.json, file:///path/to/export.json
//	s3://bucket/key?region=us-east-1&endpoint=http://localhost:9000&path_style=true
//	gs://bucket/key
//	azblob://account/container/key
func ParseLocation(dest string) (*Location, error) {
	if dest == "" {
		return nil, errors.New("empty export location")
	}
	if !strings.Contains(dest, "://") {
		return &Location{Scheme: "file", Key: dest}, nil
	}

	u, err := url.Parse(dest)
	if err != nil {
		return nil, fmt.Errorf("parsing export location %q: %w", dest, err)
	}

	loc := &Location{Scheme: u.Scheme}
	switch u.Scheme {
	case "file":
		loc.Key = u.Path
		if u.Host != "" {
			loc.Key = filepath.Join(u.Host, u.Path)
		}
	case "s3":
		loc.Bucket = u.Host
		loc.Key = strings.TrimPrefix(u.Path, "/")
		q := u.Query()
		loc.Region = q.Get("region")
		loc.Endpoint = q.Get("endpoint")
		if v := q.Get("path_style"); v != "" {
			loc.PathStyle, err = strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("invalid path_style %q", v)
			}
		}
		if u.User != nil {
			loc.AccessKey = u.User.Username()
			loc.SecretKey, _ = u.User.Password()
		}
	case "gs":
		loc.Bucket = u.Host
		loc.Key = strings.TrimPrefix(u.Path, "/")
	case "azblob":
		loc.AzureAccount = u.Host
		container, key, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		loc.Bucket = container
		loc.Key = key
	default:
		return nil, fmt.Errorf("unsupported export scheme %q", u.Scheme)
	}

	if loc.Key == "" || strings.HasSuffix(loc.Key, "/") {
		return nil, fmt.Errorf("export location %q has no object key", dest)
	}
	if loc.Scheme != "file" && loc.Bucket == "" {
		return nil, fmt.Errorf("export location %q has no bucket", dest)
	}
	return loc, nil
}

// Open parses dest and returns a Sink for it along with the key to use.
// Cloud sinks verify that the bucket is reachable.
func Open(ctx context.Context, dest string) (Sink, string, error) {
	loc, err := ParseLocation(dest)
	if err != nil {
		return nil, "", err
	}

	switch loc.Scheme {
	case "file":
		dir, name := filepath.Split(loc.Key)
		if dir == "" {
			dir = "."
		}
		sink, err := NewLocalSink(dir)
		if err != nil {
			return nil, "", err
		}
		return sink, name, nil
	case "s3":
		sink, err := NewS3Sink(ctx, loc.Bucket, S3Options{
			Region:          loc.Region,
			EndpointURL:     loc.Endpoint,
			UsePathStyle:    loc.PathStyle,
			AccessKeyID:     loc.AccessKey,
			SecretAccessKey: loc.SecretKey,
		})
		if err != nil {
			return nil, "", err
		}
		return sink, loc.Key, nil
	case "gs":
		sink, err := NewGCSSink(ctx, loc.Bucket)
		if err != nil {
			return nil, "", err
		}
		return sink, loc.Key, nil
	default:
		sink, err := NewAzureSink(ctx, loc.AzureAccount, loc.Bucket)
		if err != nil {
			return nil, "", err
		}
		return sink, loc.Key, nil
	}
}

// readAllSeeker buffers r for clients that need to know the body length or
// rewind it.
func readAllSeeker(r io.Reader) (*bytes.Reader, error) {
	if br, ok := r.(*bytes.Reader); ok {
		return br, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading export data: %w", err)
	}
	return bytes.NewReader(data), nil
}
