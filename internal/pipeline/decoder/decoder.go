// Package decoder turns raw booking log payloads into models.BookingEvent values.
package decoder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/validation"
	"notification-pipeline/internal/models"
)

// LocalDateTimeLayout is the wire format of booking times. Fractional seconds are accepted on parse.
const LocalDateTimeLayout = "2006-01-02T15:04:05"

var timeLayouts = []string{
	LocalDateTimeLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04",
}

// legacyAliases maps canonical field names to the names used by the catalog producer.
var legacyAliases = map[string]string{
	"recipientId": "userId",
	"subjectId":   "serviceId",
	"subjectType": "serviceType",
}

var bookingEventSchema = validation.MustCompile(validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"recipientId": {Type: "integer"},
		"subjectId":   {Type: "string", MinLength: validation.Int(1)},
		"subjectType": {Type: "string", MinLength: validation.Int(1)},
		"startTime":   {Type: "string", MinLength: validation.Int(1)},
		"endTime":     {Type: "string", MinLength: validation.Int(1)},
		"channel":     {Type: []string{"string", "null"}},
	},
	Required: []string{"recipientId", "subjectId", "subjectType", "startTime", "endTime"},
})

// Decoder is stateless and safe for concurrent use.
type Decoder struct{}

// New returns a Decoder.
func New() *Decoder {
	return &Decoder{}
}

// Decode parses payload. source identifies the record in error details.
// Every failure is a *errors.StandardError with code DECODE_FAILED.
func (d *Decoder) Decode(payload []byte, source string) (*models.BookingEvent, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, apperrors.NewDecodeError(source, "empty payload")
	}

	var doc map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, apperrors.NewDecodeError(source, fmt.Sprintf("invalid JSON: %v", err))
	}
	if doc == nil {
		return nil, apperrors.NewDecodeError(source, "payload is not a JSON object")
	}

	for canonical, alias := range legacyAliases {
		if _, ok := doc[canonical]; ok {
			continue
		}
		if v, ok := doc[alias]; ok {
			doc[canonical] = v
		}
	}

	result, err := bookingEventSchema.ValidateDocument(doc)
	if err != nil {
		return nil, apperrors.NewDecodeError(source, err.Error())
	}
	if !result.Valid {
		return nil, apperrors.NewDecodeError(source, result.Error())
	}

	recipientID, err := doc["recipientId"].(json.Number).Int64()
	if err != nil {
		return nil, apperrors.NewDecodeError(source, fmt.Sprintf("recipientId: %v", err))
	}

	start, err := parseTime(doc["startTime"].(string))
	if err != nil {
		return nil, apperrors.NewDecodeError(source, fmt.Sprintf("startTime: %v", err))
	}
	end, err := parseTime(doc["endTime"].(string))
	if err != nil {
		return nil, apperrors.NewDecodeError(source, fmt.Sprintf("endTime: %v", err))
	}

	event := &models.BookingEvent{
		RecipientID: recipientID,
		SubjectID:   doc["subjectId"].(string),
		SubjectType: doc["subjectType"].(string),
		StartTime:   start,
		EndTime:     end,
	}

	if raw, ok := doc["channel"].(string); ok && raw != "" {
		ch := models.Channel(strings.ToUpper(raw))
		if !ch.Valid() {
			return nil, apperrors.NewDecodeError(source, fmt.Sprintf("channel: unknown value %q", raw))
		}
		event.Channel = ch
	}

	return event, nil
}

func parseTime(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
