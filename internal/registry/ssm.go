// ABOUTME: Parameter Store backed Source for runtime identifier lookups.
// ABOUTME: Maps agent names to parameters under a configurable prefix.

package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ParameterAPI is the slice of the SSM client the source needs.
type ParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ParameterSource looks up runtime identifiers in SSM Parameter Store.
// The parameter name for an agent is prefix + agentName.
type ParameterSource struct {
	client ParameterAPI
	prefix string
}

// NewParameterSource creates a source reading parameters under prefix.
// A trailing slash is appended if missing.
func NewParameterSource(client ParameterAPI, prefix string) *ParameterSource {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &ParameterSource{client: client, prefix: prefix}
}

// Lookup fetches the runtime identifier parameter for agentName.
func (s *ParameterSource) Lookup(ctx context.Context, agentName string) (string, error) {
	name := s.prefix + agentName

	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(name),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: no parameter %q", ErrNotFound, name)
		}
		return "", fmt.Errorf("looking up runtime parameter %q: %w", name, err)
	}

	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("%w: parameter %q is empty", ErrNotFound, name)
	}
	return aws.ToString(out.Parameter.Value), nil
}
