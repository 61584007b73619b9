package backup

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	awsrequest "github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/accessguard-core/internal/infrastructure/config"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested", "backups")

	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.Location())

	require.NoError(t, store.Put(ctx, "b.json", []byte("two")))
	require.NoError(t, store.Put(ctx, "a.json", []byte("one")))
	require.NoError(t, store.Put(ctx, "a.json", []byte("uno")))

	got, err := store.Get(ctx, "a.json")
	require.NoError(t, err)
	assert.Equal(t, "uno", string(got))

	info, err := os.Stat(filepath.Join(dir, "a.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Stray temporaries and directories are not backups.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-x"), nil, 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json"}, names)

	require.NoError(t, store.Delete(ctx, "a.json"))
	require.NoError(t, store.Delete(ctx, "a.json"), "deleting twice is fine")

	_, err = store.Get(ctx, "a.json")
	assert.ErrorIs(t, err, ErrBackupNotFound)
}

func TestLocalStore_RejectsPaths(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "../x.json", "a/b.json", `a\b.json`} {
		assert.ErrorIs(t, store.Put(ctx, name, nil), ErrInvalidFileName, name)
		_, err := store.Get(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidFileName, name)
		assert.ErrorIs(t, store.Delete(ctx, name), ErrInvalidFileName, name)
	}
}

func TestNewLocalStore_EmptyDir(t *testing.T) {
	_, err := NewLocalStore("")
	assert.Error(t, err)
}

func TestNewFileStore(t *testing.T) {
	cfg := config.BackupConfig{Dir: t.TempDir(), Storage: config.StorageLocal}
	fs, err := NewFileStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, fs)

	cfg.Storage = config.StorageS3
	cfg.S3 = config.S3Config{Bucket: "backups", Prefix: "/site-1/", Region: "eu-west-2"}
	fs, err = NewFileStore(cfg)
	require.NoError(t, err)
	assert.Equal(t, "s3://backups/site-1", fs.Location())

	cfg.S3.Bucket = ""
	_, err = NewFileStore(cfg)
	assert.Error(t, err)

	cfg.Storage = "ftp"
	_, err = NewFileStore(cfg)
	assert.Error(t, err)
}

// fakeS3 is an in-memory bucket. Unimplemented S3API methods panic through
// the nil embedded interface.
type fakeS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...awsrequest.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.StringValue(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...awsrequest.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "missing", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...awsrequest.Option) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2PagesWithContext(_ aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...awsrequest.Option) error {
	f.mu.Lock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.StringValue(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	f.mu.Unlock()
	sort.Strings(keys)

	// Two pages, to exercise the pager callback.
	half := len(keys) / 2
	pages := [][]string{keys[:half], keys[half:]}
	for i, page := range pages {
		out := &s3.ListObjectsV2Output{}
		for _, k := range page {
			out.Contents = append(out.Contents, &s3.Object{Key: aws.String(k)})
		}
		if !fn(out, i == len(pages)-1) {
			break
		}
	}
	return nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newS3StoreWithClient(fake, "backups", "site-1/")

	require.NoError(t, store.Put(ctx, "daily_backup_1.json", []byte("d1")))
	require.NoError(t, store.Put(ctx, "card_add_backup_1.json", []byte("c1")))
	fake.objects["other-site/x.json"] = []byte("ignored")

	assert.Contains(t, fake.objects, "site-1/daily_backup_1.json")

	got, err := store.Get(ctx, "daily_backup_1.json")
	require.NoError(t, err)
	assert.Equal(t, "d1", string(got))

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"card_add_backup_1.json", "daily_backup_1.json"}, names)

	require.NoError(t, store.Delete(ctx, "daily_backup_1.json"))
	_, err = store.Get(ctx, "daily_backup_1.json")
	assert.ErrorIs(t, err, ErrBackupNotFound)

	assert.ErrorIs(t, store.Put(ctx, "../escape.json", nil), ErrInvalidFileName)
}

func TestS3Store_NoPrefix(t *testing.T) {
	store := newS3StoreWithClient(newFakeS3(), "backups", "")
	assert.Equal(t, "x.json", store.key("x.json"))
	assert.Equal(t, "s3://backups", store.Location())
}
