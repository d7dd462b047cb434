package discovery

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curlens/curlens/pkg/export"
	"github.com/curlens/curlens/pkg/observability"
)

// fakeS3 serves listings from an in-memory key set.
type fakeS3 struct {
	objects map[string]int64
	calls   int

	// failures is consumed one error per call before succeeding
	failures []error
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.calls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}

	prefix := aws.ToString(params.Prefix)
	out := &s3.ListObjectsV2Output{}

	if aws.ToString(params.Delimiter) == "/" {
		seen := map[string]bool{}
		for key := range f.objects {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			rest := strings.TrimPrefix(key, prefix)
			if i := strings.Index(rest, "/"); i >= 0 {
				dir := prefix + rest[:i+1]
				if !seen[dir] {
					seen[dir] = true
					out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(dir)})
				}
			}
		}
		sort.Slice(out.CommonPrefixes, func(i, j int) bool {
			return aws.ToString(out.CommonPrefixes[i].Prefix) < aws.ToString(out.CommonPrefixes[j].Prefix)
		})
		return out, nil
	}

	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(key),
			Size: aws.Int64(f.objects[key]),
		})
	}
	return out, nil
}

func testLister(t *testing.T, client S3API, opts ...ListerOption) *Lister {
	t.Helper()
	layout, err := export.LayoutFor(export.CUR20)
	require.NoError(t, err)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewLister(client, "billing", "exports/cur", layout, logger, opts...)
}

func TestListPartitions(t *testing.T) {
	fake := &fakeS3{objects: map[string]int64{
		"exports/cur/BILLING_PERIOD=2025-06/part-0.parquet": 10,
		"exports/cur/BILLING_PERIOD=2025-05/part-0.parquet": 10,
		"exports/cur/BILLING_PERIOD=2025-07/part-0.parquet": 10,
		"exports/cur/metadata/manifest.json":                5,
		"exports/cur/billing_period=2025-08/part-0.parquet": 10, // wrong token case
	}}

	partitions, diags, err := testLister(t, fake).ListPartitions(context.Background())
	require.NoError(t, err)

	values := make([]string, len(partitions))
	for i, p := range partitions {
		values[i] = p.Value
	}
	assert.Equal(t, []string{"2025-05", "2025-06", "2025-07"}, values, "sorted ascending")
	assert.ElementsMatch(t, []string{"metadata", "billing_period=2025-08"}, diags.SkippedPartitions)
}

func TestListWindowFilter(t *testing.T) {
	fake := &fakeS3{objects: map[string]int64{
		"exports/cur/BILLING_PERIOD=2025-04/a.parquet": 1,
		"exports/cur/BILLING_PERIOD=2025-05/a.parquet": 2,
		"exports/cur/BILLING_PERIOD=2025-05/b.gz":      3,
		"exports/cur/BILLING_PERIOD=2025-06/a.parquet": 4,
		"exports/cur/BILLING_PERIOD=2025-07/a.parquet": 5,
		"exports/cur/BILLING_PERIOD=2025-08/a.parquet": 6,
	}}

	listing, err := testLister(t, fake).List(context.Background(), "2025-05", "2025-07")
	require.NoError(t, err)

	require.Len(t, listing.Partitions, 3)
	assert.Equal(t, "2025-05", listing.Partitions[0].Value)
	assert.Equal(t, "2025-07", listing.Partitions[2].Value)

	require.Len(t, listing.Files, 4)
	assert.Equal(t, "a.parquet", listing.Files[0].Name)
	assert.Equal(t, "b.gz", listing.Files[1].Name)
	assert.Equal(t, "2025-05", listing.Files[0].Partition.Value)
	assert.Equal(t, "2025-07", listing.Files[3].Partition.Value)
	assert.Equal(t, int64(2), listing.Files[0].Size)
	assert.Equal(t, "exports/cur/BILLING_PERIOD=2025-05/a.parquet", listing.Files[0].Key)
}

func TestListExtensionFilter(t *testing.T) {
	fake := &fakeS3{objects: map[string]int64{
		"exports/cur/BILLING_PERIOD=2025-06/data.parquet":  1,
		"exports/cur/BILLING_PERIOD=2025-06/manifest.json": 1,
		"exports/cur/BILLING_PERIOD=2025-06/readme.txt":    1,
	}}

	listing, err := testLister(t, fake).List(context.Background(), "", "")
	require.NoError(t, err)

	require.Len(t, listing.Files, 1)
	assert.Equal(t, "data.parquet", listing.Files[0].Name)
	assert.Equal(t, 2, listing.Diagnostics.SkippedFiles)
}

func TestListEmptyResult(t *testing.T) {
	fake := &fakeS3{objects: map[string]int64{}}

	listing, err := testLister(t, fake).List(context.Background(), "", "")
	require.NoError(t, err)
	assert.Empty(t, listing.Partitions)
	assert.Empty(t, listing.Files)
}

func TestTransientRetry(t *testing.T) {
	slowDown := &smithy.GenericAPIError{Code: "SlowDown", Message: "reduce request rate"}
	fake := &fakeS3{
		objects:  map[string]int64{"exports/cur/BILLING_PERIOD=2025-06/a.parquet": 1},
		failures: []error{slowDown, slowDown},
	}

	lister := testLister(t, fake, WithRetry(3, time.Millisecond, 5*time.Millisecond))
	partitions, _, err := lister.ListPartitions(context.Background())
	require.NoError(t, err)
	assert.Len(t, partitions, 1)
	assert.Equal(t, 3, fake.calls, "two transient failures then success")
}

func TestPermanentErrorNotRetried(t *testing.T) {
	denied := &smithy.GenericAPIError{Code: "AccessDenied", Message: "access denied"}
	fake := &fakeS3{
		objects:  map[string]int64{"exports/cur/BILLING_PERIOD=2025-06/a.parquet": 1},
		failures: []error{denied, denied, denied, denied},
	}

	lister := testLister(t, fake, WithRetry(3, time.Millisecond, 5*time.Millisecond))
	_, _, err := lister.ListPartitions(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, fake.calls, "access denied is not retried")
	assert.True(t, IsAccessDenied(err))
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsTransient(&smithy.GenericAPIError{Code: "SlowDown"}))
	assert.True(t, IsTransient(&smithy.GenericAPIError{Code: "InternalError"}))
	assert.False(t, IsTransient(&smithy.GenericAPIError{Code: "NoSuchBucket", Fault: smithy.FaultClient}))
	assert.True(t, IsAccessDenied(&smithy.GenericAPIError{Code: "ExpiredToken"}))
	assert.False(t, IsAccessDenied(&smithy.GenericAPIError{Code: "SlowDown"}))
	assert.True(t, IsNotFound(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.False(t, IsNotFound(nil))
}
