// Package assets uploads trade attachments to remote file storage and
// derives display URLs for them. Only the provider-assigned file id is
// stored in the trade row.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dmitrijs2005/tradebook/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tradebook/internal/common"
	"github.com/dmitrijs2005/tradebook/internal/logging"
)

// FileStore is the remote file storage backing attachments. Folder ids are
// opaque; an empty parent id means the storage root.
type FileStore interface {
	// FindFolder returns the id of the named folder under parentID, or ""
	// when there is none.
	FindFolder(ctx context.Context, name, parentID string) (string, error)
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	FolderExists(ctx context.Context, id string) (bool, error)
	Upload(ctx context.Context, folderID, filename, contentType string, r io.Reader) (string, error)
	// URL derives a display link for a stored file without a remote call.
	URL(ctx context.Context, fileID string) (string, error)
}

type Options struct {
	RootFolder        string
	AttachmentsFolder string
	Budget            ImageBudget
}

// Channel resolves the attachments folder and uploads normalized images
// into it.
type Channel struct {
	store  FileStore
	state  metadata.Repository
	log    logging.Logger
	root   string
	sub    string
	budget ImageBudget

	mu       sync.Mutex
	folderID string
}

func NewChannel(store FileStore, state metadata.Repository, log logging.Logger, opts Options) *Channel {
	if opts.RootFolder == "" {
		opts.RootFolder = common.DefaultRootFolderName
	}
	if opts.AttachmentsFolder == "" {
		opts.AttachmentsFolder = common.DefaultAttachmentsFolderName
	}
	return &Channel{
		store:  store,
		state:  state,
		log:    log.With("component", "assets"),
		root:   opts.RootFolder,
		sub:    opts.AttachmentsFolder,
		budget: opts.Budget.withDefaults(),
	}
}

// ResolveFolder returns the attachments folder id, locating or creating
// the root folder and its attachments subfolder when no usable id is cached.
func (c *Channel) ResolveFolder(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	candidate := c.folderID
	if candidate == "" {
		raw, err := c.state.Get(ctx, common.StateKeyFolderID)
		if err != nil {
			return "", err
		}
		candidate = string(raw)
	}

	if candidate != "" {
		ok, err := c.store.FolderExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if ok {
			c.folderID = candidate
			return candidate, nil
		}
		c.log.Warn(ctx, "cached attachments folder is gone", "folder_id", candidate)
	}

	rootID, err := c.findOrCreate(ctx, c.root, "")
	if err != nil {
		return "", err
	}
	subID, err := c.findOrCreate(ctx, c.sub, rootID)
	if err != nil {
		return "", err
	}

	if err := c.state.Set(ctx, common.StateKeyFolderID, []byte(subID)); err != nil {
		return "", fmt.Errorf("persist folder handle: %w", err)
	}
	c.folderID = subID
	c.log.Info(ctx, "attachments folder resolved", "folder_id", subID)
	return subID, nil
}

func (c *Channel) findOrCreate(ctx context.Context, name, parentID string) (string, error) {
	id, err := c.store.FindFolder(ctx, name, parentID)
	if err != nil {
		return "", fmt.Errorf("find folder %s: %w", name, err)
	}
	if id != "" {
		return id, nil
	}

	id, err = c.store.CreateFolder(ctx, name, parentID)
	if err != nil {
		return "", fmt.Errorf("%w: create folder %s: %w", common.ErrProvisioning, name, err)
	}
	return id, nil
}

// Forget drops the in-memory folder id.
func (c *Channel) Forget() {
	c.mu.Lock()
	c.folderID = ""
	c.mu.Unlock()
}

// Upload normalizes blob to a JPEG within the image budget and stores it in
// the attachments folder. It returns the provider file id.
func (c *Channel) Upload(ctx context.Context, blob []byte, filename string) (string, error) {
	img, err := NormalizeImage(blob, c.budget)
	if err != nil {
		return "", err
	}

	folderID, err := c.ResolveFolder(ctx)
	if err != nil {
		return "", err
	}

	name := jpegName(filename)
	id, err := c.store.Upload(ctx, folderID, name, "image/jpeg", bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	c.log.Info(ctx, "attachment uploaded", "file_id", id, "bytes", len(img), "original_bytes", len(blob))
	return id, nil
}

// URLFor derives the display URL of an uploaded file.
func (c *Channel) URLFor(ctx context.Context, fileID string) (string, error) {
	if fileID == "" {
		return "", fmt.Errorf("%w: empty file id", common.ErrValidation)
	}
	return c.store.URL(ctx, fileID)
}

func jpegName(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "attachment"
	}
	return base + ".jpg"
}
