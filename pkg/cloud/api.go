package cloud

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
)

// CognitoAPI is the subset of the Cognito user pool API the identity
// client calls. *cognitoidentityprovider.Client satisfies it.
type CognitoAPI interface {
	InitiateAuth(ctx context.Context, params *cognitoidentityprovider.InitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error)
	RespondToAuthChallenge(ctx context.Context, params *cognitoidentityprovider.RespondToAuthChallengeInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.RespondToAuthChallengeOutput, error)
}

// NewCognitoAPI builds an unsigned Cognito client for region. The public
// auth flows used here need no AWS credentials, so anonymous credentials
// are configured and the shared AWS config files are not consulted for
// them. proxyURL, when set, routes Cognito traffic through an HTTP proxy.
func NewCognitoAPI(ctx context.Context, region, proxyURL string) (*cognitoidentityprovider.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("cloud: parse proxy url: %w", err)
		}
		client := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
			tr.Proxy = http.ProxyURL(u)
		})
		opts = append(opts, config.WithHTTPClient(client))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cloud: load aws config: %w", err)
	}

	return cognitoidentityprovider.NewFromConfig(cfg), nil
}
