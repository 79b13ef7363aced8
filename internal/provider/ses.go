package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/outreach-dispatch/internal/config"
	"github.com/ignite/outreach-dispatch/internal/pkg/logger"
)

// sesAPI is the subset of the SES v2 client the sender uses.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends email through AWS SES. The acquired mailbox resource's
// identifier is used as the From address.
type SESSender struct {
	id        string
	cost      float64
	configSet string
	defaults  Payload
	client    sesAPI
}

// NewSESSender creates an SES sender. Static credentials are used when
// configured, otherwise the default AWS credential chain.
func NewSESSender(ctx context.Context, cfg config.ProviderConfig, creds config.AWSConfig) (*SESSender, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if creds.AccessKey != "" && creds.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ses %s: load aws config: %w", cfg.ID, err)
	}
	return newSESSender(cfg, sesv2.NewFromConfig(awsCfg)), nil
}

func newSESSender(cfg config.ProviderConfig, client sesAPI) *SESSender {
	return &SESSender{
		id:        cfg.ID,
		cost:      cfg.CostPerCall,
		configSet: cfg.ConfigSet,
		defaults:  Payload{Subject: cfg.Subject, Body: cfg.Template},
		client:    client,
	}
}

func (s *SESSender) ID() string               { return s.id }
func (s *SESSender) DefaultPayload() Payload { return s.defaults }

// Send delivers msg through SES.
func (s *SESSender) Send(ctx context.Context, msg Message) Result {
	if msg.From == "" {
		return Failed(KindRejected, errors.New("ses: no sending mailbox"), 0)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("lead_id"), Value: aws.String(tagValue(msg.LeadID))},
			{Name: aws.String("campaign_id"), Value: aws.String(tagValue(msg.CampaignID))},
		},
	}
	if s.configSet != "" {
		input.ConfigurationSetName = aws.String(s.configSet)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		kind := classifySESError(err)
		logger.Warn("ses send failed", "provider", s.id, "email", msg.To, "kind", kind, "error", err)
		return Failed(kind, fmt.Errorf("ses %s: %w", s.id, err), 0)
	}

	messageID := aws.ToString(out.MessageId)
	logger.Info("ses message sent", "provider", s.id, "email", msg.To, "message_id", messageID)
	return Delivered(messageID, s.cost)
}

func classifySESError(err error) ErrorKind {
	var (
		rejected    *types.MessageRejected
		badRequest  *types.BadRequestException
		unverified  *types.MailFromDomainNotVerifiedException
		throttled   *types.TooManyRequestsException
		limitExceed *types.LimitExceededException
	)
	switch {
	case errors.As(err, &rejected), errors.As(err, &badRequest), errors.As(err, &unverified):
		return KindRejected
	case errors.As(err, &throttled), errors.As(err, &limitExceed):
		return KindRateLimited
	}
	return KindProviderError
}

// SES tag values allow only ASCII letters, digits, '_' and '-'.
func tagValue(s string) string {
	if s == "" {
		return "none"
	}
	b := []byte(s)
	for i, c := range b {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-') {
			b[i] = '_'
		}
	}
	return string(b)
}
