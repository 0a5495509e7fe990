package object

import (
	"context"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	cmnenv "s4/server/common/env"
)

type Config struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	SessionToken string
	Bucket       string
	Region       string
	UseSSL       bool
}

// ConfigFromEnv reads the STORAGE_* settings shared by every service.
func ConfigFromEnv(region string) Config {
	return Config{
		Endpoint:     cmnenv.String("STORAGE_ENDPOINT", "localhost:9000"),
		AccessKey:    cmnenv.String("STORAGE_ACCESS_KEY", ""),
		SecretKey:    cmnenv.String("STORAGE_SECRET_KEY", ""),
		SessionToken: cmnenv.String("STORAGE_SESSION_TOKEN", ""),
		Bucket:       cmnenv.String("STORAGE_BUCKET", "s4-files"),
		Region:       region,
		UseSSL:       cmnenv.Bool("STORAGE_USE_SSL", false),
	}
}

// NewClient builds an S3 client. A fixed region keeps presigning local: the client never
// has to look the bucket location up over the network.
func NewClient(cfg Config) (*minio.Client, error) {
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentialsFor(cfg),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
}

func EnsureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

// credentialsFor uses the configured static key when there is one. Otherwise it resolves
// AWS_* then MINIO_* environment keys, then the instance or task role, which is how a
// Lambda function receives its temporary credentials.
func credentialsFor(cfg Config) *credentials.Credentials {
	if cfg.AccessKey != "" {
		return credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken)
	}
	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.EnvMinio{},
		&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
	})
}
