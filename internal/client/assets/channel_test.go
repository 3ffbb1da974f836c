package assets

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"testing"

	"github.com/dmitrijs2005/tradebook/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tradebook/internal/common"
	"github.com/dmitrijs2005/tradebook/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type folder struct {
	name   string
	parent string
}

type fakeFileStore struct {
	folders   map[string]folder
	uploads   map[string][]byte
	lastName  string
	lastType  string
	lastDir   string
	createErr error
	uploadErr error
	calls     []string
	nextID    int
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{folders: map[string]folder{}, uploads: map[string][]byte{}}
}

func (f *fakeFileStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeFileStore) FindFolder(_ context.Context, name, parentID string) (string, error) {
	f.calls = append(f.calls, "find "+name)
	for id, fo := range f.folders {
		if fo.name == name && fo.parent == parentID {
			return id, nil
		}
	}
	return "", nil
}

func (f *fakeFileStore) CreateFolder(_ context.Context, name, parentID string) (string, error) {
	f.calls = append(f.calls, "create "+name)
	if f.createErr != nil {
		return "", f.createErr
	}
	id := f.id("folder")
	f.folders[id] = folder{name: name, parent: parentID}
	return id, nil
}

func (f *fakeFileStore) FolderExists(_ context.Context, id string) (bool, error) {
	f.calls = append(f.calls, "exists "+id)
	_, ok := f.folders[id]
	return ok, nil
}

func (f *fakeFileStore) Upload(_ context.Context, folderID, filename, contentType string, r io.Reader) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	id := f.id("file")
	f.uploads[id] = b
	f.lastName, f.lastType, f.lastDir = filename, contentType, folderID
	return id, nil
}

func (f *fakeFileStore) URL(_ context.Context, fileID string) (string, error) {
	return "https://files.example/" + fileID, nil
}

func newChannel(t *testing.T, store FileStore) (*Channel, metadata.Repository) {
	t.Helper()
	state, err := metadata.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = state.Close() })
	return NewChannel(store, state, logging.Nop(), Options{}), state
}

func pngBlob(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestResolveFolder_CreatesNestedFoldersOnceAndPersists(t *testing.T) {
	ctx := context.Background()
	store := newFakeFileStore()
	ch, state := newChannel(t, store)

	id, err := ch.ResolveFolder(ctx)
	require.NoError(t, err)

	sub := store.folders[id]
	assert.Equal(t, common.DefaultAttachmentsFolderName, sub.name)
	assert.Equal(t, common.DefaultRootFolderName, store.folders[sub.parent].name)

	persisted, err := state.Get(ctx, common.StateKeyFolderID)
	require.NoError(t, err)
	assert.Equal(t, id, string(persisted))

	again, err := ch.ResolveFolder(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Len(t, store.folders, 2)
}

func TestResolveFolder_ReusesExistingFolders(t *testing.T) {
	ctx := context.Background()
	store := newFakeFileStore()
	store.folders["r"] = folder{name: common.DefaultRootFolderName}
	store.folders["a"] = folder{name: common.DefaultAttachmentsFolderName, parent: "r"}

	ch, _ := newChannel(t, store)
	id, err := ch.ResolveFolder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", id)
	assert.NotContains(t, store.calls, "create "+common.DefaultRootFolderName)
}

func TestResolveFolder_ReResolvesWhenCachedFolderVanished(t *testing.T) {
	ctx := context.Background()
	store := newFakeFileStore()
	ch, state := newChannel(t, store)
	require.NoError(t, state.Set(ctx, common.StateKeyFolderID, []byte("deleted")))

	id, err := ch.ResolveFolder(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "deleted", id)
	assert.Equal(t, "exists deleted", store.calls[0])
}

func TestResolveFolder_CreateFailureIsProvisioning(t *testing.T) {
	store := newFakeFileStore()
	store.createErr = common.ErrTransport
	ch, _ := newChannel(t, store)

	_, err := ch.ResolveFolder(context.Background())
	require.ErrorIs(t, err, common.ErrProvisioning)
	require.ErrorIs(t, err, common.ErrTransport)
}

func TestUpload_NormalizesAndStoresJPEG(t *testing.T) {
	ctx := context.Background()
	store := newFakeFileStore()
	ch, _ := newChannel(t, store)

	id, err := ch.Upload(ctx, pngBlob(t, 64, 32), "chart.png")
	require.NoError(t, err)

	assert.Equal(t, "chart.jpg", store.lastName)
	assert.Equal(t, "image/jpeg", store.lastType)
	assert.NotEmpty(t, store.lastDir)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(store.uploads[id]))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 32, cfg.Height)
}

func TestUpload_RejectsNonImage(t *testing.T) {
	store := newFakeFileStore()
	ch, _ := newChannel(t, store)

	_, err := ch.Upload(context.Background(), []byte("not an image"), "x.txt")
	require.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, store.calls, "no remote call for invalid input")
}

func TestUpload_PropagatesStoreError(t *testing.T) {
	store := newFakeFileStore()
	store.uploadErr = common.ErrUnauthorized
	ch, _ := newChannel(t, store)

	_, err := ch.Upload(context.Background(), pngBlob(t, 4, 4), "a.png")
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestURLFor(t *testing.T) {
	ch, _ := newChannel(t, newFakeFileStore())

	url, err := ch.URLFor(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example/file-1", url)

	_, err = ch.URLFor(context.Background(), "")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestNormalizeImage_DownscalesToMaxDimension(t *testing.T) {
	out, err := NormalizeImage(pngBlob(t, 300, 120), ImageBudget{MaxDimension: 100})
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 40, cfg.Height)
}

func TestNormalizeImage_OverBudgetFails(t *testing.T) {
	_, err := NormalizeImage(pngBlob(t, 200, 200), ImageBudget{MaxBytes: 10})
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestFitWithin(t *testing.T) {
	w, h := fitWithin(100, 50, 200)
	assert.Equal(t, [2]int{100, 50}, [2]int{w, h})
	w, h = fitWithin(400, 1600, 800)
	assert.Equal(t, [2]int{200, 800}, [2]int{w, h})
	w, h = fitWithin(5000, 1, 100)
	assert.Equal(t, [2]int{100, 1}, [2]int{w, h})
}

func TestJPEGName(t *testing.T) {
	assert.Equal(t, "shot.jpg", jpegName("/tmp/shot.webp"))
	assert.Equal(t, "attachment.jpg", jpegName(""))
}
