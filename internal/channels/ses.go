package channels

import (
	"context"
	"time"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the part of the SES client the email channel needs.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESEmail sends notifications as plain emails through Amazon SES.
type SESEmail struct {
	client    SESService
	contacts  store.ContactLookup
	fromEmail string
	timeout   time.Duration
	logger    logger.Logger
}

func NewSESEmail(client SESService, contacts store.ContactLookup, fromEmail string, timeout time.Duration, log logger.Logger) *SESEmail {
	return &SESEmail{
		client:    client,
		contacts:  contacts,
		fromEmail: fromEmail,
		timeout:   timeout,
		logger:    log.WithFields(map[string]interface{}{"channel": NameEmail, "provider": "ses"}),
	}
}

func (s *SESEmail) Name() string { return NameEmail }

func (s *SESEmail) Send(ctx context.Context, n *models.Notification) Result {
	return attempt(ctx, NameEmail, s.timeout, func(ctx context.Context) error {
		contact, err := s.contacts.LookupContact(ctx, n.RecipientID)
		if err != nil {
			return err
		}
		if contact.Email == nil || *contact.Email == "" {
			return apperrors.NewRecipientContactMissingError(NameEmail, n.RecipientID)
		}

		out, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
			Destination: &types.Destination{
				ToAddresses: []string{*contact.Email},
			},
			Message: &types.Message{
				Subject: &types.Content{Data: aws.String(n.Title)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(n.Message)},
				},
			},
			Source: aws.String(s.fromEmail),
		})
		if err != nil {
			return err
		}

		s.logger.Debug("email sent", map[string]interface{}{
			"notificationId": n.ID,
			"messageId":      aws.ToString(out.MessageId),
		})
		return nil
	})
}
