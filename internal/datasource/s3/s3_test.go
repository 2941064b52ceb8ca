package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves two list pages and object bodies from a map.
type fakeAPI struct {
	pages   [][]string
	objects map[string]string
}

func (f *fakeAPI) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := 0
	if in.ContinuationToken != nil {
		page = 1
	}
	out := &s3.ListObjectsV2Output{}
	for _, k := range f.pages[page] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if page+1 < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String("next")
	}
	return out, nil
}

func (f *fakeAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestDiscover_PaginatesAndFilters(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pages: [][]string{
		{"export/b.csv", "export/readme.md"},
		{"export/A.CSV", "export/sub/c.csv"},
	}}

	srcs, err := Discover(context.Background(), api, "bkt", "export/")
	require.NoError(t, err)

	var got []string
	for _, s := range srcs {
		got = append(got, s.Path())
	}
	assert.Equal(t, []string{
		"s3://bkt/export/A.CSV",
		"s3://bkt/export/b.csv",
		"s3://bkt/export/sub/c.csv",
	}, got)
}

func TestSource_Open(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		pages:   [][]string{{"a.csv"}},
		objects: map[string]string{"a.csv": "x\n1\n"},
	}
	srcs, err := Discover(context.Background(), api, "bkt", "")
	require.NoError(t, err)
	require.Len(t, srcs, 1)

	rc, err := srcs[0].Open(context.Background())
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "x\n1\n", string(b))

	missing := &Source{api: api, bucket: "bkt", key: "gone.csv"}
	_, err = missing.Open(context.Background())
	assert.True(t, errors.Is(err, ErrObjectNotFound), "err = %v", err)
}

func TestParseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		bucket  string
		prefix  string
		wantErr bool
	}{
		{in: "s3://bkt/some/prefix", bucket: "bkt", prefix: "some/prefix"},
		{in: "s3://bkt", bucket: "bkt", prefix: ""},
		{in: "s3:///x", wantErr: true},
		{in: "/local/dir", wantErr: true},
	}
	for _, tt := range tests {
		b, p, err := ParseURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.bucket, b)
		assert.Equal(t, tt.prefix, p)
	}
	assert.True(t, IsURL("s3://x"))
	assert.False(t, IsURL("./x"))
}
