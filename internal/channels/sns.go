package channels

import (
	"context"
	"time"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSService is the part of the SNS client the push channel needs.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPush publishes notifications to a recipient's mobile platform endpoint.
type SNSPush struct {
	client   SNSService
	contacts store.ContactLookup
	timeout  time.Duration
	logger   logger.Logger
}

func NewSNSPush(client SNSService, contacts store.ContactLookup, timeout time.Duration, log logger.Logger) *SNSPush {
	return &SNSPush{
		client:   client,
		contacts: contacts,
		timeout:  timeout,
		logger:   log.WithFields(map[string]interface{}{"channel": NamePush, "provider": "sns"}),
	}
}

func (p *SNSPush) Name() string { return NamePush }

func (p *SNSPush) Send(ctx context.Context, n *models.Notification) Result {
	return attempt(ctx, NamePush, p.timeout, func(ctx context.Context) error {
		contact, err := p.contacts.LookupContact(ctx, n.RecipientID)
		if err != nil {
			return err
		}
		if contact.PushEndpoint == nil || *contact.PushEndpoint == "" {
			return apperrors.NewRecipientContactMissingError(NamePush, n.RecipientID)
		}

		out, err := p.client.Publish(ctx, &sns.PublishInput{
			TargetArn: contact.PushEndpoint,
			Subject:   aws.String(n.Title),
			Message:   aws.String(n.Message),
		})
		if err != nil {
			return err
		}

		p.logger.Debug("push published", map[string]interface{}{
			"notificationId": n.ID,
			"messageId":      aws.ToString(out.MessageId),
		})
		return nil
	})
}
