package push

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	domerrors "github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/errors"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/metrics"
)

// SNSService is the SNS API surface the gateway uses, defined for mocking.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Gateway sends push payloads to device endpoints through AWS SNS. Device
// push tokens are SNS platform endpoint ARNs registered by the mobile
// clients.
type Gateway struct {
	client SNSService
}

func NewGateway(ctx context.Context, region string) (*Gateway, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &Gateway{client: sns.NewFromConfig(cfg)}, nil
}

// NewGatewayWithClient builds a gateway over an existing SNS client.
func NewGatewayWithClient(client SNSService) *Gateway {
	return &Gateway{client: client}
}

// Send publishes one payload to a device endpoint.
func (g *Gateway) Send(ctx context.Context, token string, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = g.client.Publish(ctx, &sns.PublishInput{
		TargetArn: aws.String(token),
		Message:   aws.String(string(body)),
	})
	if err != nil {
		metrics.PushFailed.Inc()
		return domerrors.NewPushSendFailedError(err)
	}
	metrics.PushSent.Inc()
	return nil
}
