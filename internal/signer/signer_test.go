// ABOUTME: Tests for SigV4 request signing.
// ABOUTME: Validates header application and credential failure propagation.

package signer

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_AppliesAuthorizationHeaders(t *testing.T) {
	creds := credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", "")
	s := New(creds, "us-east-1", "")

	body := []byte(`{"prompt":"hi","sessionId":"s-1"}`)
	req, err := http.NewRequest(http.MethodPost, "https://bedrock-agentcore.us-east-1.amazonaws.com/runtimes/rt-1/invocations", strings.NewReader(string(body)))
	require.NoError(t, err)

	require.NoError(t, s.Sign(context.Background(), req, body))

	auth := req.Header.Get("Authorization")
	assert.Contains(t, auth, "AWS4-HMAC-SHA256")
	assert.Contains(t, auth, "Credential=AKIDEXAMPLE/")
	assert.Contains(t, auth, "/us-east-1/bedrock-agentcore/aws4_request")
	assert.NotEmpty(t, req.Header.Get("X-Amz-Date"))
}

func TestSign_DifferentBodiesDifferentSignatures(t *testing.T) {
	creds := credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", "")
	s := New(creds, "us-east-1", DefaultService)

	sign := func(body string) string {
		req, err := http.NewRequest(http.MethodPost, "https://example.test/runtimes/rt-1/invocations", strings.NewReader(body))
		require.NoError(t, err)
		require.NoError(t, s.Sign(context.Background(), req, []byte(body)))
		return req.Header.Get("Authorization")
	}

	assert.NotEqual(t, sign(`{"prompt":"a"}`), sign(`{"prompt":"b"}`))
}

type failingProvider struct{ err error }

func (p failingProvider) Retrieve(context.Context) (aws.Credentials, error) {
	return aws.Credentials{}, p.err
}

func TestSign_CredentialFailurePropagates(t *testing.T) {
	cause := errors.New("no credential source")
	s := New(failingProvider{err: cause}, "us-east-1", DefaultService)

	req, err := http.NewRequest(http.MethodPost, "https://example.test/", nil)
	require.NoError(t, err)

	err = s.Sign(context.Background(), req, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, req.Header.Get("Authorization"))
}
