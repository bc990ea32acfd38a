// Package imagestore keeps recipe images in an S3 bucket.
package imagestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/nfnt/resize"

	"recipebox/internal/model"
)

const keyPrefix = "recipe-images/"

var (
	ErrEmptyImage       = errors.New("image is empty")
	ErrImageTooLarge    = errors.New("image is too large")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrInvalidImageURL  = errors.New("invalid image url")
)

// ObjectAPI is the subset of the S3 client the store needs.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
}

// Options configure a Store. MaxPixels caps width*height of JPEG and PNG
// images before decoding. AllowPrivateNetworks lets UploadFromURL reach
// loopback, link-local and private addresses.
type Options struct {
	Bucket               string
	Region               string
	PublicBaseURL        string
	MaxBytes             int64
	MaxPixels            int64
	MaxWidth             int
	FetchTimeout         time.Duration
	AllowPrivateNetworks bool
}

type Store struct {
	client     ObjectAPI
	opts       Options
	httpClient *http.Client
}

func New(client ObjectAPI, opts Options) *Store {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 << 20
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = 40_000_000
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	return &Store{
		client:     client,
		opts:       opts,
		httpClient: newFetchClient(opts.FetchTimeout, opts.AllowPrivateNetworks),
	}
}

// Upload stores data as a new object. JPEG and PNG images wider than
// MaxWidth are downscaled first.
func (s *Store) Upload(ctx context.Context, data []byte, filename string) (*model.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if int64(len(data)) > s.opts.MaxBytes {
		return nil, ErrImageTooLarge
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, mt.String())
	}
	if mt.Is("image/jpeg") || mt.Is("image/png") {
		if err := checkDimensions(data, s.opts.MaxPixels); err != nil {
			return nil, err
		}
		optimized, err := optimize(data, s.opts.MaxWidth)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
		}
		data = optimized
	}

	contentType := mt.String()
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	key := keyPrefix + uuid.NewString() + mt.Extension()

	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("put s3 object failed: %w", err)
	}

	return &model.Image{
		Key:          key,
		Bucket:       s.opts.Bucket,
		Location:     s.location(key),
		MimeType:     contentType,
		Size:         int64(len(data)),
		OriginalName: filename,
	}, nil
}

// UploadFromURL downloads an http(s) image and stores it.
func (s *Store) UploadFromURL(ctx context.Context, rawURL string) (*model.Image, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidImageURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build image request failed: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, errBlockedAddress) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImageURL, err)
		}
		return nil, fmt.Errorf("fetch image failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch image failed: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body failed: %w", err)
	}
	if int64(len(data)) > s.opts.MaxBytes {
		return nil, ErrImageTooLarge
	}

	return s.Upload(ctx, data, path.Base(u.Path))
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete s3 object %q failed: %w", key, err)
	}
	return nil
}

func (s *Store) location(key string) string {
	if s.opts.PublicBaseURL != "" {
		return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.opts.Bucket, s.opts.Region, key)
}

// checkDimensions reads only the image header so oversized images are
// rejected before their pixels are allocated.
func checkDimensions(data []byte, maxPixels int64) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: empty dimensions", ErrUnsupportedImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUnsupportedImage, cfg.Width, cfg.Height, maxPixels)
	}
	return nil
}

func optimize(data []byte, maxWidth int) ([]byte, error) {
	if maxWidth <= 0 {
		return data, nil
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if img.Bounds().Dx() <= maxWidth {
		return data, nil
	}

	resized := resize.Resize(uint(maxWidth), 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85})
	case "png":
		err = png.Encode(&buf, resized)
	default:
		return data, nil
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
