// Package awsutil builds AWS SDK sessions from migrator configuration.
package awsutil

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"

	"migrator/internal/config"
)

// NewSession returns a session for cfg. Static credentials are used when
// both keys are set; otherwise the SDK's default chain applies. Endpoint
// points the clients at a local emulator (DynamoDB Local, MinIO).
func NewSession(cfg config.AWSConfig) (*session.Session, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *Config(cfg),
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("awsutil: new session: %w", err)
	}
	return sess, nil
}

// Config converts cfg into an aws.Config.
func Config(cfg config.AWSConfig) *aws.Config {
	c := aws.NewConfig()
	if cfg.Region != "" {
		c = c.WithRegion(cfg.Region)
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		c = c.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
	}
	if cfg.Endpoint != "" {
		// Emulators serve every bucket from one host.
		c = c.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	return c
}
