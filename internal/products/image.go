package product

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
)

// imageStore is the object storage used for product images.
type imageStore interface {
	Upload(ctx context.Context, object, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, object string) error
	ObjectFromURL(raw string) (string, bool)
}

// ImageUploadInput is the raw uploaded file. The declared content type from
// the multipart header is ignored in favour of sniffing.
type ImageUploadInput struct {
	Filename string
	Body     io.Reader
}

var allowedImageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// UploadImage stores the image under products/{id}/{uuid}.{ext} and points
// image_url at it. The previous image is removed once the row is updated.
func (s *service) UploadImage(ctx context.Context, id uuid.UUID, input ImageUploadInput) (*ProductDTO, error) {
	if input.Body == nil {
		return nil, validationError(map[string]string{"image": "image is required"})
	}
	product, err := loadProduct(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(input.Body, s.maxUploadBytes+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "could not read uploaded image")
	}
	if len(data) == 0 {
		return nil, validationError(map[string]string{"image": "image is required"})
	}
	if int64(len(data)) > s.maxUploadBytes {
		return nil, validationError(map[string]string{
			"image": fmt.Sprintf("image may not be greater than %d kilobytes", s.maxUploadBytes/1024),
		})
	}

	detected := mimetype.Detect(data)
	ext, ok := allowedImageTypes[detected.String()]
	if !ok {
		return nil, validationError(map[string]string{
			"image": "image must be a file of type: jpeg, png, webp",
		})
	}

	object := fmt.Sprintf("products/%s/%s.%s", id, uuid.NewString(), ext)
	url, err := s.images.Upload(ctx, object, detected.String(), bytes.NewReader(data))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storage: upload product image")
	}

	if err := s.repo.SetImageURL(ctx, id, &url); err != nil {
		if delErr := s.images.Delete(ctx, object); delErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "object", object), "orphaned product image could not be removed")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update product image")
	}
	s.removeStoredImage(ctx, product.ImageURL)

	return s.GetProduct(ctx, id)
}

// removeStoredImage deletes an image we own. Foreign URLs are left alone.
func (s *service) removeStoredImage(ctx context.Context, imageURL *string) {
	if imageURL == nil {
		return
	}
	object, ok := s.images.ObjectFromURL(*imageURL)
	if !ok {
		return
	}
	if err := s.images.Delete(ctx, object); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"object": object, "error": err.Error()})
		s.logg.Warn(logCtx, "previous product image could not be removed")
	}
}
