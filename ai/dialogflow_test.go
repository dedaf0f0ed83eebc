package ai

import (
	"context"
	"testing"

	"cloud.google.com/go/dialogflow/apiv2/dialogflowpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestDialogflowDetectorBuildsTextQuery(t *testing.T) {
	var got *dialogflowpb.DetectIntentRequest
	d := &DialogflowDetector{
		projectID: "nonprofit-site",
		detect: func(_ context.Context, req *dialogflowpb.DetectIntentRequest) (*dialogflowpb.DetectIntentResponse, error) {
			got = req
			return &dialogflowpb.DetectIntentResponse{
				QueryResult: &dialogflowpb.QueryResult{
					FulfillmentText: "Hi! How can we help?",
					Intent:          &dialogflowpb.Intent{DisplayName: "Default Welcome Intent"},
				},
			}, nil
		},
	}

	answer, err := d.DetectIntent(context.Background(), Query{SessionID: "S", Text: "hello", LanguageCode: "en-US"})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "projects/nonprofit-site/agent/sessions/S", got.GetSession())
	assert.Equal(t, "hello", got.GetQueryInput().GetText().GetText())
	assert.Equal(t, "en-US", got.GetQueryInput().GetText().GetLanguageCode())
	assert.Equal(t, "Hi! How can we help?", answer.FulfillmentText)
	assert.Equal(t, "Default Welcome Intent", answer.Intent)
}

func TestDialogflowDetectorFallsBackToFulfillmentMessages(t *testing.T) {
	d := &DialogflowDetector{
		projectID: "p",
		detect: func(context.Context, *dialogflowpb.DetectIntentRequest) (*dialogflowpb.DetectIntentResponse, error) {
			return &dialogflowpb.DetectIntentResponse{
				QueryResult: &dialogflowpb.QueryResult{
					FulfillmentMessages: []*dialogflowpb.Intent_Message{
						{Message: &dialogflowpb.Intent_Message_Text_{Text: &dialogflowpb.Intent_Message_Text{Text: []string{"We meet on Tuesdays.", " "}}}},
						{Message: &dialogflowpb.Intent_Message_Text_{Text: &dialogflowpb.Intent_Message_Text{Text: []string{"Volunteers welcome."}}}},
					},
				},
			}, nil
		},
	}

	answer, err := d.DetectIntent(context.Background(), Query{SessionID: "S", Text: "when", LanguageCode: "en-US"})

	require.NoError(t, err)
	assert.Equal(t, "We meet on Tuesdays.\nVolunteers welcome.", answer.FulfillmentText)
	assert.Empty(t, answer.Intent)
}

func TestDialogflowDetectorPassesErrorsThrough(t *testing.T) {
	quota := status.Error(codes.ResourceExhausted, "quota exceeded")
	d := &DialogflowDetector{
		projectID: "p",
		detect: func(context.Context, *dialogflowpb.DetectIntentRequest) (*dialogflowpb.DetectIntentResponse, error) {
			return nil, quota
		},
	}

	_, err := d.DetectIntent(context.Background(), Query{SessionID: "S", Text: "hi"})

	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestNewDialogflowDetectorRequiresProject(t *testing.T) {
	_, err := NewDialogflowDetector(context.Background(), DialogflowConfig{})
	assert.Error(t, err)
}
