package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"jailbreak-eval/internal/domain"
)

const (
	pkPrefixRun = "RUN#"
	skPrefixRec = "REC#"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Client wraps a DynamoDB table as an incremental checkpoint store: one item
// per completed EvaluationRecord, partitioned by run. It satisfies the
// driver's RecordSink.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new checkpoint store Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// runPK returns the partition key for a run.
func runPK(runID string) string {
	return pkPrefixRun + runID
}

// recSK returns the sort key for a record; zero-padding keeps items in
// sequence order under a string sort.
func recSK(seq int) string {
	return fmt.Sprintf("%s%06d", skPrefixRec, seq)
}

// PutRecord persists one completed record. Sequence numbers within a run are
// unique, so an existing item is never silently overwritten.
func (c *Client) PutRecord(ctx context.Context, runID string, seq int, rec domain.EvaluationRecord) error {
	if strings.TrimSpace(runID) == "" {
		return errors.New("repository: PutRecord: run id is required")
	}
	if seq < 0 {
		return errors.New("repository: PutRecord: sequence must not be negative")
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                recordItem(runID, seq, rec),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: PutRecord: %w", err)
	}
	return nil
}

func recordItem(runID string, seq int, rec domain.EvaluationRecord) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":              &types.AttributeValueMemberS{Value: runPK(runID)},
		"SK":              &types.AttributeValueMemberS{Value: recSK(seq)},
		"runId":           &types.AttributeValueMemberS{Value: runID},
		"seq":             &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", seq)},
		"system":          &types.AttributeValueMemberS{Value: rec.System},
		"prompt":          &types.AttributeValueMemberS{Value: rec.Prompt},
		"response":        &types.AttributeValueMemberS{Value: rec.Response},
		"critique":        &types.AttributeValueMemberS{Value: rec.Critique},
		"responseRevised": &types.AttributeValueMemberS{Value: rec.ResponseRevised},
		"criterion":       &types.AttributeValueMemberS{Value: rec.Criterion},
		"model":           &types.AttributeValueMemberS{Value: rec.Model},
		"metaModel":       &types.AttributeValueMemberS{Value: rec.MetaModel},
		"temperature":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%g", rec.Temperature)},
	}
}
