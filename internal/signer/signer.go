// ABOUTME: SigV4 request signing for outbound runtime invocations.
// ABOUTME: Credentials are retrieved fresh per call from the ambient provider.

package signer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// DefaultService is the signing service name for agent runtime invocations.
const DefaultService = "bedrock-agentcore"

// Signer produces authenticated outbound requests. It is a pure function
// of the request plus ambient credentials; nothing is cached here since
// the provider's material is time-sensitive.
type Signer struct {
	creds   aws.CredentialsProvider
	region  string
	service string
	v4      *v4.Signer
}

// New creates a Signer over an explicit credentials provider.
func New(creds aws.CredentialsProvider, region, service string) *Signer {
	if service == "" {
		service = DefaultService
	}
	return &Signer{
		creds:   creds,
		region:  region,
		service: service,
		v4:      v4.NewSigner(),
	}
}

// NewFromEnvironment creates a Signer using the default ambient credential
// chain (environment, shared config, instance role).
func NewFromEnvironment(ctx context.Context, region string) (*Signer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading ambient credentials: %w", err)
	}
	return New(cfg.Credentials, region, DefaultService), nil
}

// Sign retrieves credentials and applies SigV4 authentication headers to
// req for the given body. Credential retrieval failures propagate
// unchanged; callers treat them as fatal for the current attempt.
func (s *Signer) Sign(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := s.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieving signing credentials: %w", err)
	}

	sum := sha256.Sum256(body)
	return s.v4.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), s.service, s.region, time.Now().UTC())
}
