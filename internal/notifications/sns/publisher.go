// Package sns fans committed market events out to an AWS SNS topic.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/internal/market"
)

// API is the part of the SNS client the publisher needs
type API interface {
	Publish(ctx context.Context, params *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
}

// Publisher sends each event as a JSON message with filterable attributes
type Publisher struct {
	client   API
	topicARN string
	logger   *zap.Logger
}

func New(client API, topicARN string, logger *zap.Logger) (*Publisher, error) {
	if topicARN == "" {
		return nil, errors.New("sns topic arn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, topicARN: topicARN, logger: logger}, nil
}

// NewFromConfig builds the client from the default AWS credential chain
func NewFromConfig(ctx context.Context, region, topicARN string, logger *zap.Logger) (*Publisher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return New(awssns.NewFromConfig(cfg), topicARN, logger)
}

func (p *Publisher) Publish(ctx context.Context, event market.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %d: %w", event.Sequence, err)
	}

	out, err := p.client.Publish(ctx, &awssns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		Subject:  aws.String("credit-market " + string(event.Type)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Type)),
			},
			"project_id": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatInt(event.ProjectID, 10)),
			},
			"company_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.CompanyID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish event %d to sns: %w", event.Sequence, err)
	}

	p.logger.Debug("Event published to SNS",
		zap.Uint64("sequence", event.Sequence),
		zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}
