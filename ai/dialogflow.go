package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	dialogflow "cloud.google.com/go/dialogflow/apiv2"
	"cloud.google.com/go/dialogflow/apiv2/dialogflowpb"
	"google.golang.org/api/option"
)

// DialogflowConfig configures the Dialogflow ES v2 sessions client.
type DialogflowConfig struct {
	ProjectID string
	// CredentialsJSON takes precedence over CredentialsFile. When both are empty the
	// client uses application default credentials.
	CredentialsJSON []byte
	CredentialsFile string
	// Endpoint selects a regional API endpoint.
	Endpoint string
}

type detectFunc func(ctx context.Context, req *dialogflowpb.DetectIntentRequest) (*dialogflowpb.DetectIntentResponse, error)

// DialogflowDetector implements IntentDetector with Dialogflow DetectIntent.
type DialogflowDetector struct {
	projectID string
	detect    detectFunc
	close     func() error
}

// NewDialogflowDetector dials the Dialogflow sessions API.
func NewDialogflowDetector(ctx context.Context, cfg DialogflowConfig) (*DialogflowDetector, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("dialogflow project id is required")
	}

	var opts []option.ClientOption
	switch {
	case len(cfg.CredentialsJSON) > 0:
		opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := dialogflow.NewSessionsClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialogflow sessions client: %w", err)
	}

	return &DialogflowDetector{
		projectID: cfg.ProjectID,
		detect: func(ctx context.Context, req *dialogflowpb.DetectIntentRequest) (*dialogflowpb.DetectIntentResponse, error) {
			return client.DetectIntent(ctx, req)
		},
		close: client.Close,
	}, nil
}

// DetectIntent sends one text query and extracts the fulfillment.
func (d *DialogflowDetector) DetectIntent(ctx context.Context, q Query) (Answer, error) {
	resp, err := d.detect(ctx, d.buildRequest(q))
	if err != nil {
		return Answer{}, err
	}
	return answerFrom(resp), nil
}

// Close releases the underlying gRPC connection.
func (d *DialogflowDetector) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}

// SessionPath is the fully qualified Dialogflow session name for sessionID.
func (d *DialogflowDetector) SessionPath(sessionID string) string {
	return fmt.Sprintf("projects/%s/agent/sessions/%s", d.projectID, sessionID)
}

func (d *DialogflowDetector) buildRequest(q Query) *dialogflowpb.DetectIntentRequest {
	return &dialogflowpb.DetectIntentRequest{
		Session: d.SessionPath(q.SessionID),
		QueryInput: &dialogflowpb.QueryInput{
			Input: &dialogflowpb.QueryInput_Text{
				Text: &dialogflowpb.TextInput{
					Text:         q.Text,
					LanguageCode: q.LanguageCode,
				},
			},
		},
	}
}

// answerFrom prefers fulfillmentText and falls back to the text fulfillment messages,
// which is where agents built with rich responses put their reply.
func answerFrom(resp *dialogflowpb.DetectIntentResponse) Answer {
	qr := resp.GetQueryResult()
	answer := Answer{
		FulfillmentText: qr.GetFulfillmentText(),
		Intent:          qr.GetIntent().GetDisplayName(),
		Confidence:      qr.GetIntentDetectionConfidence(),
	}
	if strings.TrimSpace(answer.FulfillmentText) != "" {
		return answer
	}

	var parts []string
	for _, m := range qr.GetFulfillmentMessages() {
		for _, t := range m.GetText().GetText() {
			if t = strings.TrimSpace(t); t != "" {
				parts = append(parts, t)
			}
		}
	}
	answer.FulfillmentText = strings.Join(parts, "\n")
	return answer
}
