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

package imageio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"path/filepath"
	"strings"
	"testing"

	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/obfuscate/internal/log"
	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

type fakeS3 struct {
	objects map[string][]byte
	puts    []*s3svc.PutObjectInput
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3svc.GetObjectInput, _ ...func(*s3svc.Options)) (*s3svc.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3svc.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3svc.PutObjectInput, _ ...func(*s3svc.Options)) (*s3svc.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	f.puts = append(f.puts, in)
	return &s3svc.PutObjectOutput{}, nil
}

func testStore(fake *fakeS3) *Store {
	s := NewStore(Options{Logger: log.Discard()})
	s.newS3 = func(ctx context.Context, opts S3Options) (s3APIClient, error) {
		return fake, nil
	}
	s.isTerminal = func() bool { return false }
	return s
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.SetNRGBA(1, 1, color.NRGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestStore_LocalRoundTrip(t *testing.T) {
	s := testStore(nil)
	dir := t.TempDir()
	out := filepath.Join(dir, "nested", "out.png")

	src := imaging.New(8, 6, color.NRGBA{G: 255, A: 255})
	require.NoError(t, s.Save(context.Background(), out, src))

	img, info, err := s.Load(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, "png", info.Format)
	assert.Equal(t, 8, info.Width)
	assert.Equal(t, 6, info.Height)
	assert.Equal(t, 0, info.Exif.Tags)
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, color.NRGBAModel.Convert(img.At(3, 3)))
}

func TestStore_LoadMissingFile(t *testing.T) {
	_, _, err := testStore(nil).Load(context.Background(), filepath.Join(t.TempDir(), "nope.png"))
	var nf *obferrors.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestStore_DecodeRejectsGarbage(t *testing.T) {
	_, _, err := testStore(nil).Decode(context.Background(), "junk", []byte("not an image"))
	var opErr *obferrors.OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "decode", opErr.Operation)
}

func TestStore_MaxBytes(t *testing.T) {
	s := NewStore(Options{MaxBytes: 10, Logger: log.Discard()})
	_, _, err := s.Decode(context.Background(), "big.png", pngBytes(t, 4, 4))
	var verr *obferrors.ValidationError
	assert.True(t, errors.As(err, &verr))
}

// pngHeader returns a PNG signature and IHDR chunk declaring w x h RGBA
// pixels, without any image data.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // truecolor with alpha

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestStore_MaxPixelsCheckedBeforeDecoding(t *testing.T) {
	s := NewStore(Options{MaxPixels: 100_000_000, Logger: log.Discard()})

	_, _, err := s.Decode(context.Background(), "huge.png", pngHeader(60000, 60000))
	var verr *obferrors.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "InputImage", verr.Field)
	assert.Contains(t, verr.Message, "60000x60000")

	img, _, err := s.Decode(context.Background(), "small.png", pngBytes(t, 4, 4))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(4, 4), img.Bounds().Size())
}

func TestStore_Stdio(t *testing.T) {
	s := testStore(nil)
	s.stdin = bytes.NewReader(pngBytes(t, 3, 2))
	var stdout bytes.Buffer
	s.stdout = &stdout

	img, info, err := s.Load(context.Background(), StdioRef)
	require.NoError(t, err)
	assert.Equal(t, StdioRef, info.Ref)

	require.NoError(t, s.Save(context.Background(), StdioRef, img))
	_, format, err := image.DecodeConfig(bytes.NewReader(stdout.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}

func TestStore_RefusesTerminal(t *testing.T) {
	s := testStore(nil)
	s.isTerminal = func() bool { return true }
	s.stdout = io.Discard

	err := s.Save(context.Background(), StdioRef, imaging.New(1, 1, color.Black))
	var verr *obferrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "OutputImage", verr.Field)
}

func TestStore_FormatFor(t *testing.T) {
	s := NewStore(Options{DefaultFormat: "jpg", Logger: log.Discard()})

	tests := []struct {
		ref     string
		want    imaging.Format
		wantErr bool
	}{
		{"out.png", imaging.PNG, false},
		{"out.JPEG", imaging.JPEG, false},
		{"out.tif", imaging.TIFF, false},
		{"noext", imaging.JPEG, false},
		{StdioRef, imaging.JPEG, false},
		{"s3://bucket/a/b.gif", imaging.GIF, false},
		{"out.webp", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := s.FormatFor(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatForMediaType(t *testing.T) {
	f, ok := FormatForMediaType(" Image/JPEG ")
	require.True(t, ok)
	assert.Equal(t, imaging.JPEG, f)
	assert.Equal(t, "image/jpeg", ContentType(f))

	f, ok = FormatForMediaType("image/tiff")
	require.True(t, ok)
	assert.Equal(t, "image/tiff", ContentType(f))

	_, ok = FormatForMediaType("image/webp")
	assert.False(t, ok)
	assert.Equal(t, "image/png", ContentType(imaging.PNG))
}

func TestStore_S3(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"photos/in.png": pngBytes(t, 5, 5)}}
	s := testStore(fake)

	img, info, err := s.Load(context.Background(), "s3://photos/in.png")
	require.NoError(t, err)
	assert.Equal(t, 5, info.Width)

	require.NoError(t, s.Save(context.Background(), "s3://photos/out/in.jpg", img))
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "image/jpeg", *fake.puts[0].ContentType)
	assert.Contains(t, fake.objects, "photos/out/in.jpg")

	_, _, err = s.Load(context.Background(), "s3://photos/missing.png")
	var nf *obferrors.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestParseS3(t *testing.T) {
	loc, err := parseS3("s3://bucket/dir/key.png")
	require.NoError(t, err)
	assert.Equal(t, s3Location{Bucket: "bucket", Key: "dir/key.png"}, loc)
	assert.Equal(t, "s3://bucket/dir/key.png", loc.String())

	for _, bad := range []string{"s3://bucket", "s3:///key", "http://bucket/key"} {
		_, err := parseS3(bad)
		assert.Error(t, err, bad)
	}
}

func TestInspectExif_NoExif(t *testing.T) {
	report := InspectExif(pngBytes(t, 2, 2))
	assert.Equal(t, 0, report.Tags)
	assert.False(t, report.Identifying())
	assert.Empty(t, report.Sensitive)

	assert.False(t, InspectExif([]byte(strings.Repeat("x", 64))).GPS)
}
