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
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3APIClient is the narrow S3 interface used to read and write images.
type s3APIClient interface {
	GetObject(ctx context.Context, params *s3svc.GetObjectInput, optFns ...func(*s3svc.Options)) (*s3svc.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3svc.PutObjectInput, optFns ...func(*s3svc.Options)) (*s3svc.PutObjectOutput, error)
}

// S3Options configures the S3 client.
type S3Options struct {
	Region    string
	Endpoint  string
	PathStyle bool
}

// s3ClientFactory creates an S3 client.
// Injection point: tests replace this with a function returning a fake.
type s3ClientFactory func(ctx context.Context, opts S3Options) (s3APIClient, error)

// newDefaultS3Client loads the shared AWS configuration (environment,
// profile, instance role) and builds an SDK client.
func newDefaultS3Client(ctx context.Context, opts S3Options) (s3APIClient, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	return s3svc.NewFromConfig(cfg, func(o *s3svc.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	}), nil
}

// s3Location is a parsed s3://bucket/key reference.
type s3Location struct {
	Bucket string
	Key    string
}

func (l s3Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

func parseS3(ref string) (s3Location, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return s3Location{}, fmt.Errorf("invalid S3 URI %q: %w", ref, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || u.Host == "" || key == "" {
		return s3Location{}, fmt.Errorf("invalid S3 URI %q: want s3://bucket/key", ref)
	}
	return s3Location{Bucket: u.Host, Key: key}, nil
}
