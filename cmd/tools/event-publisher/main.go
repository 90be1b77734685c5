// cmd/tools/event-publisher/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"notification-pipeline/internal/consumer"
	"notification-pipeline/internal/pipeline/decoder"
)

type bookingPayload struct {
	RecipientID int64  `json:"recipientId"`
	SubjectID   string `json:"subjectId"`
	SubjectType string `json:"subjectType"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	Channel     string `json:"channel,omitempty"`
}

func main() {
	addr := flag.String("redis", "localhost:6379", "Redis address")
	password := flag.String("password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	stream := flag.String("stream", "booking-requests", "Stream name")
	field := flag.String("field", "payload", "Entry field holding the JSON payload")

	recipient := flag.Int64("recipient", 1, "Recipient (user) id")
	subject := flag.String("subject", "GYM", "Booked subject id")
	subjectType := flag.String("subjectType", "FACILITY", "Booked subject type")
	start := flag.String("start", "", "Start time (default: tomorrow 10:00)")
	duration := flag.Duration("duration", time.Hour, "Booking length, used when -end is empty")
	end := flag.String("end", "", "End time")
	channel := flag.String("channel", "", "Optional channel: IN_APP, EMAIL, PUSH or SMS")
	count := flag.Int("count", 1, "Number of events to append")
	raw := flag.String("raw", "", "Append this payload verbatim instead of building one")
	flag.Parse()

	payload := []byte(*raw)
	if *raw == "" {
		event, err := buildEvent(*recipient, *subject, *subjectType, *start, *end, *duration, *channel)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		payload, err = json.Marshal(event)
		if err != nil {
			fmt.Printf("Error encoding event: %v\n", err)
			os.Exit(1)
		}
	}

	client := redis.NewClient(&redis.Options{Addr: *addr, Password: *password})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := 0; i < *count; i++ {
		id, err := consumer.Append(ctx, client, *stream, *field, payload)
		if err != nil {
			fmt.Printf("Error appending to %s: %v\n", *stream, err)
			os.Exit(1)
		}
		fmt.Printf("Appended %s: %s\n", id, payload)
	}
}

func buildEvent(recipient int64, subject, subjectType, start, end string, duration time.Duration, channel string) (*bookingPayload, error) {
	var startAt time.Time
	if start == "" {
		tomorrow := time.Now().AddDate(0, 0, 1)
		startAt = time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 10, 0, 0, 0, time.Local)
	} else {
		t, err := time.Parse(decoder.LocalDateTimeLayout, start)
		if err != nil {
			return nil, fmt.Errorf("start must look like %s: %w", decoder.LocalDateTimeLayout, err)
		}
		startAt = t
	}

	endAt := startAt.Add(duration)
	if end != "" {
		t, err := time.Parse(decoder.LocalDateTimeLayout, end)
		if err != nil {
			return nil, fmt.Errorf("end must look like %s: %w", decoder.LocalDateTimeLayout, err)
		}
		endAt = t
	}

	return &bookingPayload{
		RecipientID: recipient,
		SubjectID:   subject,
		SubjectType: subjectType,
		StartTime:   startAt.Format(decoder.LocalDateTimeLayout),
		EndTime:     endAt.Format(decoder.LocalDateTimeLayout),
		Channel:     channel,
	}, nil
}
