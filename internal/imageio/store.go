// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package imageio loads input images and saves redacted output.
//
// A reference is a local path, "-" for stdin/stdout, or an
// s3://bucket/key URI. Decoding honours the EXIF orientation tag and
// supports PNG, JPEG, GIF, BMP, TIFF and WebP input. Output is written as
// PNG, JPEG, GIF, BMP or TIFF, chosen from the reference's extension.
package imageio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/disintegration/imaging"
	"golang.org/x/term"

	// Decoders beyond the ones imaging pulls in.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/tombee/obfuscate/internal/log"
	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

// StdioRef reads from stdin or writes to stdout.
const StdioRef = "-"

// DefaultMaxBytes bounds the size of an encoded input (256 MiB).
const DefaultMaxBytes = 256 << 20

// Info describes a loaded input.
type Info struct {
	Ref    string     `json:"ref"`
	Format string     `json:"format"`
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Bytes  int        `json:"bytes"`
	Exif   ExifReport `json:"exif"`
}

// Options configures a Store.
type Options struct {
	// JPEGQuality is used for .jpg/.jpeg output (1-100, default 95).
	JPEGQuality int

	// DefaultFormat is used when the output reference has no usable
	// extension, including stdout (default "png").
	DefaultFormat string

	// MaxBytes rejects larger inputs. Zero means DefaultMaxBytes.
	MaxBytes int64

	// MaxPixels rejects images whose header declares more pixels, before
	// the bitmap is allocated. Zero disables the check.
	MaxPixels int64

	S3 S3Options

	Logger *slog.Logger
}

// Store reads and writes images by reference.
type Store struct {
	opts Options

	newS3  s3ClientFactory
	s3Once sync.Once
	s3     s3APIClient
	s3Err  error

	stdin      io.Reader
	stdout     io.Writer
	isTerminal func() bool
}

// NewStore creates a Store.
func NewStore(opts Options) *Store {
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 95
	}
	if opts.DefaultFormat == "" {
		opts.DefaultFormat = "png"
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		opts:   opts,
		newS3:  newDefaultS3Client,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdout.Fd()))
		},
	}
}

// SetStdio redirects the "-" reference. Writing to out is refused when
// out is an *os.File attached to a terminal.
func (s *Store) SetStdio(in io.Reader, out io.Writer) {
	s.stdin = in
	s.stdout = out
	s.isTerminal = func() bool {
		f, ok := out.(*os.File)
		return ok && term.IsTerminal(int(f.Fd()))
	}
}

// Load reads and decodes the image at ref.
func (s *Store) Load(ctx context.Context, ref string) (image.Image, Info, error) {
	data, err := s.read(ctx, ref)
	if err != nil {
		return nil, Info{}, err
	}
	return s.Decode(ctx, ref, data)
}

// Decode decodes an already-read image. ref is used for reporting only.
func (s *Store) Decode(ctx context.Context, ref string, data []byte) (image.Image, Info, error) {
	if int64(len(data)) > s.opts.MaxBytes {
		return nil, Info{}, &obferrors.ValidationError{
			Field:   "InputImage",
			Message: fmt.Sprintf("%s is %d bytes, larger than the %d byte limit", ref, len(data), s.opts.MaxBytes),
		}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, Info{}, &obferrors.OperationError{
			Operation: "decode",
			Message:   fmt.Sprintf("%s is not a supported image", ref),
			Cause:     err,
		}
	}
	if max := s.opts.MaxPixels; max > 0 {
		if cfg.Width < 0 || cfg.Height < 0 || int64(cfg.Width)*int64(cfg.Height) > max {
			return nil, Info{}, &obferrors.ValidationError{
				Field:   "InputImage",
				Message: fmt.Sprintf("%s is %dx%d, larger than the %d pixel limit", ref, cfg.Width, cfg.Height, max),
			}
		}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, Info{}, &obferrors.OperationError{
			Operation: "decode",
			Message:   ref,
			Cause:     err,
		}
	}

	size := img.Bounds().Size()
	info := Info{
		Ref:    ref,
		Format: format,
		Width:  size.X,
		Height: size.Y,
		Bytes:  len(data),
		Exif:   InspectExif(data),
	}
	if info.Exif.Tags > 0 {
		s.opts.Logger.InfoContext(ctx, "input EXIF metadata will not be copied to the output",
			log.ImageKey, ref,
			"exif_tags", info.Exif.Tags,
			"identifying", info.Exif.Identifying(),
		)
	}
	return img, info, nil
}

// Save encodes img and writes it to ref.
func (s *Store) Save(ctx context.Context, ref string, img image.Image) error {
	format, err := s.FormatFor(ref)
	if err != nil {
		return err
	}
	if ref == StdioRef && s.isTerminal() {
		return &obferrors.ValidationError{
			Field:      "OutputImage",
			Message:    "refusing to write binary image data to a terminal",
			Suggestion: "redirect stdout or pass --output <file>",
		}
	}

	var buf bytes.Buffer
	if err := s.Encode(&buf, img, format); err != nil {
		return err
	}
	return s.write(ctx, ref, buf.Bytes(), format)
}

// Encode writes img to w in format.
func (s *Store) Encode(w io.Writer, img image.Image, format imaging.Format) error {
	if err := imaging.Encode(w, img, format, imaging.JPEGQuality(s.opts.JPEGQuality)); err != nil {
		return &obferrors.OperationError{Operation: "encode", Message: format.String(), Cause: err}
	}
	return nil
}

// FormatFor picks the output format from ref's extension, falling back to
// the default format when there is none.
func (s *Store) FormatFor(ref string) (imaging.Format, error) {
	name := ref
	if isS3(ref) {
		if loc, err := parseS3(ref); err == nil {
			name = loc.Key
		}
	}
	if ref == StdioRef || filepath.Ext(name) == "" {
		name = "out." + s.opts.DefaultFormat
	}
	format, err := imaging.FormatFromFilename(name)
	if err != nil {
		return 0, &obferrors.ValidationError{
			Field:      "OutputImage",
			Message:    fmt.Sprintf("unsupported output format %q", filepath.Ext(name)),
			Suggestion: "use .png, .jpg, .gif, .bmp or .tif",
		}
	}
	return format, nil
}

// ParseFormat resolves a format name such as "png" or "jpeg".
func ParseFormat(name string) (imaging.Format, error) {
	format, err := imaging.FormatFromExtension(strings.TrimPrefix(name, "."))
	if err != nil {
		return 0, fmt.Errorf("unsupported image format %q", name)
	}
	return format, nil
}

func isS3(ref string) bool {
	return strings.HasPrefix(ref, "s3://")
}

func (s *Store) read(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case ref == StdioRef:
		return s.readLimited(s.stdin, ref)
	case isS3(ref):
		return s.readS3(ctx, ref)
	default:
		f, err := os.Open(ref)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, &obferrors.NotFoundError{Resource: "image", ID: ref}
			}
			return nil, obferrors.Wrapf(err, "opening %s", ref)
		}
		defer f.Close()
		return s.readLimited(f, ref)
	}
}

func (s *Store) readLimited(r io.Reader, ref string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.opts.MaxBytes+1))
	if err != nil {
		return nil, obferrors.Wrapf(err, "reading %s", ref)
	}
	return data, nil
}

func (s *Store) write(ctx context.Context, ref string, data []byte, format imaging.Format) error {
	switch {
	case ref == StdioRef:
		_, err := s.stdout.Write(data)
		return obferrors.Wrap(err, "writing to stdout")
	case isS3(ref):
		return s.writeS3(ctx, ref, data, format)
	default:
		if dir := filepath.Dir(ref); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return obferrors.Wrapf(err, "creating %s", dir)
			}
		}
		return obferrors.Wrapf(os.WriteFile(ref, data, 0o644), "writing %s", ref)
	}
}

func (s *Store) s3Client(ctx context.Context) (s3APIClient, error) {
	s.s3Once.Do(func() {
		s.s3, s.s3Err = s.newS3(ctx, s.opts.S3)
	})
	return s.s3, s.s3Err
}

func (s *Store) readS3(ctx context.Context, ref string) ([]byte, error) {
	loc, err := parseS3(ref)
	if err != nil {
		return nil, &obferrors.ValidationError{Field: "InputImage", Message: err.Error()}
	}
	client, err := s.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3svc.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, &obferrors.NotFoundError{Resource: "image", ID: ref}
		}
		return nil, obferrors.Wrapf(err, "fetching %s", loc)
	}
	defer out.Body.Close()
	return s.readLimited(out.Body, ref)
}

func (s *Store) writeS3(ctx context.Context, ref string, data []byte, format imaging.Format) error {
	loc, err := parseS3(ref)
	if err != nil {
		return &obferrors.ValidationError{Field: "OutputImage", Message: err.Error()}
	}
	client, err := s.s3Client(ctx)
	if err != nil {
		return err
	}

	_, err = client.PutObject(ctx, &s3svc.PutObjectInput{
		Bucket:        aws.String(loc.Bucket),
		Key:           aws.String(loc.Key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(ContentType(format)),
	})
	return obferrors.Wrapf(err, "uploading %s", loc)
}

// ContentType returns the MIME type of format.
func ContentType(format imaging.Format) string {
	switch format {
	case imaging.JPEG:
		return "image/jpeg"
	case imaging.GIF:
		return "image/gif"
	case imaging.BMP:
		return "image/bmp"
	case imaging.TIFF:
		return "image/tiff"
	default:
		return "image/png"
	}
}

// FormatForMediaType maps a MIME type such as "image/jpeg" to a format.
func FormatForMediaType(mediaType string) (imaging.Format, bool) {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "image/png":
		return imaging.PNG, true
	case "image/jpeg", "image/jpg":
		return imaging.JPEG, true
	case "image/gif":
		return imaging.GIF, true
	case "image/bmp":
		return imaging.BMP, true
	case "image/tiff":
		return imaging.TIFF, true
	}
	return 0, false
}
