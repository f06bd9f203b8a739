package fleet

import (
	"context"
	"errors"
	"strings"

	"rentpool/internal/app/commands"
)

const uploadImageKey = "fleet.upload_image"

var ErrImageRequired = errors.New("fleet: image content is required")

// ImageStore persists binary images and returns their public URL.
type ImageStore interface {
	Put(ctx context.Context, groupID, filename, contentType string, data []byte) (key string, url string, err error)
	Delete(ctx context.Context, key string) error
}

// UploadImageCommand stores an image and appends it to the group like
// AppendImagesCommand. The object is removed again when the append fails.
type UploadImageCommand struct {
	GroupID     string `validate:"required"`
	Filename    string `validate:"max=255"`
	ContentType string `validate:"required,oneof=image/jpeg image/png image/webp image/gif"`
	Data        []byte
}

func (c UploadImageCommand) Key() string { return uploadImageKey }

func (c UploadImageCommand) SelfTransacting() bool { return true }

type UploadImageResult struct {
	URL string `json:"url"`
	BulkUpdateResult
}

type UploadImageHandler struct {
	*Handlers
	Images ImageStore
}

func (h UploadImageHandler) Handle(ctx context.Context, cmd UploadImageCommand) (*UploadImageResult, error) {
	if len(cmd.Data) == 0 {
		return nil, ErrImageRequired
	}
	groupID := strings.TrimSpace(cmd.GroupID)
	if groupID == "" {
		return nil, ErrGroupIDRequired
	}
	key, url, err := h.Images.Put(ctx, groupID, cmd.Filename, cmd.ContentType, cmd.Data)
	if err != nil {
		return nil, err
	}
	res, err := AppendImagesHandler{h.Handlers}.Handle(ctx, AppendImagesCommand{GroupID: groupID, URLs: []string{url}})
	if err != nil {
		if delErr := h.Images.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			h.log().Warn("orphaned group image", "group_id", groupID, "key", key, "err", delErr)
		}
		return nil, err
	}
	return &UploadImageResult{URL: url, BulkUpdateResult: *res}, nil
}

var _ commands.Handler[UploadImageCommand, *UploadImageResult] = UploadImageHandler{}
