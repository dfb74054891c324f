package media

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/MarkusWeidner/ImmoFox/app/models"
	"github.com/MarkusWeidner/ImmoFox/app/repository"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/env"
)

// Checker answers the publish precondition "does this listing have at least
// one image". Image bytes live in object storage; we check the stored
// references first and fall back to probing the bucket prefix.
type Checker interface {
	HasMedia(ctx context.Context, listing *models.Listing) (bool, error)
}

type storeChecker struct {
	listings repository.ListingStore
	probe    *s3Probe
}

// NewChecker creates the default checker over the listing store. If S3 is
// configured, listings without stored references get a bucket prefix probe as
// a second chance (covers direct uploads whose DB row lagged behind).
func NewChecker(listings repository.ListingStore) Checker {
	probe, err := newS3Probe()
	if err != nil {
		log.Warnf("[Media] S3 probe disabled: %v", err)
		probe = nil
	}
	return &storeChecker{listings: listings, probe: probe}
}

// NewStoreOnlyChecker creates a checker that consults only the database.
func NewStoreOnlyChecker(listings repository.ListingStore) Checker {
	return &storeChecker{listings: listings}
}

func (c *storeChecker) HasMedia(ctx context.Context, listing *models.Listing) (bool, error) {
	count, err := c.listings.CountImages(listing.ID)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	if c.probe == nil {
		return false, nil
	}
	return c.probe.prefixExists(ctx, fmt.Sprintf("listings/%s/", listing.UUID))
}

// s3Probe holds the bucket client for the prefix fallback.
type s3Probe struct {
	client *s3.Client
	bucket string
}

func newS3Probe() (*s3Probe, error) {
	bucket := env.GetEnv("S3_BUCKET_NAME", "")
	accessKey := env.GetEnv("S3_ACCESS_KEY_ID", "")
	secretKey := env.GetEnv("S3_SECRET_ACCESS_KEY", "")
	if bucket == "" || accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("S3 media storage is not configured")
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(env.GetEnv("S3_REGION", "eu-central-1")),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if endpoint := env.GetEnv("S3_ENDPOINT_URL", ""); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &s3Probe{client: client, bucket: bucket}, nil
}

// prefixExists reports whether at least one object is stored under the prefix.
func (p *s3Probe) prefixExists(ctx context.Context, prefix string) (bool, error) {
	out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("listing objects under %s failed: %w", prefix, err)
	}
	return len(out.Contents) > 0, nil
}
