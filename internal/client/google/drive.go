package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/tradebook/internal/client/assets"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

var _ assets.FileStore = (*Client)(nil)

func (c *Client) FindFolder(ctx context.Context, name, parentID string) (string, error) {
	if parentID == "" {
		parentID = "root"
	}
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), folderMimeType, escapeQuery(parentID))

	res, err := c.drive.Files.List().
		Q(q).
		Spaces("drive").
		Fields("files(id)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", mapError(err)
	}
	if len(res.Files) == 0 {
		return "", nil
	}
	return res.Files[0].Id, nil
}

func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	f := &drive.File{Name: name, MimeType: folderMimeType}
	if parentID != "" {
		f.Parents = []string{parentID}
	}

	res, err := c.drive.Files.Create(f).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", mapError(err)
	}
	c.log.Info(ctx, "folder created", "folder_id", res.Id, "name", name)
	return res.Id, nil
}

// FolderExists reports whether id names a live (not trashed) folder.
func (c *Client) FolderExists(ctx context.Context, id string) (bool, error) {
	f, err := c.drive.Files.Get(id).Fields("id,mimeType,trashed").Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return false, nil
		}
		return false, mapError(err)
	}
	return !f.Trashed && f.MimeType == folderMimeType, nil
}

func (c *Client) Upload(ctx context.Context, folderID, filename, contentType string, r io.Reader) (string, error) {
	f := &drive.File{Name: filename, MimeType: contentType}
	if folderID != "" {
		f.Parents = []string{folderID}
	}

	res, err := c.drive.Files.Create(f).
		Media(r, googleapi.ContentType(contentType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", mapError(err)
	}
	c.log.Debug(ctx, "file uploaded", "file_id", res.Id, "folder_id", folderID)
	return res.Id, nil
}

// URL derives a thumbnail link; Drive serves it to the signed-in owner.
func (c *Client) URL(_ context.Context, fileID string) (string, error) {
	return ThumbnailURL(fileID), nil
}

func ThumbnailURL(fileID string) string {
	return fmt.Sprintf("https://drive.google.com/thumbnail?id=%s&sz=w%d", fileID, ThumbnailWidth)
}
