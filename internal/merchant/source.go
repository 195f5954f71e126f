package merchant

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
)

// Source loads merchant data.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
	String() string
}

// FileSource reads a YAML merchant file from local disk.
type FileSource struct {
	Path string
}

func (s FileSource) Load(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return Parse(data)
}

func (s FileSource) String() string { return s.Path }

// GCSSource reads a YAML merchant file from a Cloud Storage object.
type GCSSource struct {
	Client *storage.Client
	Bucket string
	Object string
}

func (s GCSSource) Load(ctx context.Context) (*Snapshot, error) {
	r, err := s.Client.Bucket(s.Bucket).Object(s.Object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	return Parse(data)
}

func (s GCSSource) String() string { return "gs://" + s.Bucket + "/" + s.Object }

// ParseGCSURI splits gs://bucket/object into its parts.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// URI: %q", uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("gs:// URI needs a bucket and an object: %q", uri)
	}
	return bucket, object, nil
}

// SourceFor picks a GCS source for gs:// locations and a file source otherwise. client may
// be nil when location is a local path.
func SourceFor(location string, client *storage.Client) (Source, error) {
	if location == "" {
		return nil, fmt.Errorf("merchant data location is required")
	}
	if !strings.HasPrefix(location, "gs://") {
		return FileSource{Path: location}, nil
	}
	bucket, object, err := ParseGCSURI(location)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("storage client required for %s", location)
	}
	return GCSSource{Client: client, Bucket: bucket, Object: object}, nil
}
