package dedupe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type dynamoMarker struct {
	MessageID  string `dynamodbav:"messageId"`
	AdmittedAt string `dynamodbav:"admittedAt"`
	ExpiresAt  int64  `dynamodbav:"expiresAt"`
}

// Dynamo keeps in-flight markers in a DynamoDB table keyed by messageId.
// Expired markers can be taken over before the table's TTL sweep removes them.
type Dynamo struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

var _ Deduplicator = (*Dynamo)(nil)

// NewDynamo builds a DynamoDB deduplicator keyed by messageId. A non-positive
// ttl defaults to five minutes.
func NewDynamo(client dynamoAPI, tableName string, ttl time.Duration) *Dynamo {
	if client == nil {
		panic("dedupe: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("dedupe: dynamodb table name cannot be empty")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Dynamo{client: client, tableName: tableName, ttl: ttl, now: time.Now}
}

// Admit writes the marker with a condition that only passes for a new or
// expired item.
func (d *Dynamo) Admit(ctx context.Context, messageID string) (bool, error) {
	if strings.TrimSpace(messageID) == "" {
		return false, ErrEmptyID
	}
	now := d.now().UTC()
	item, err := attributevalue.MarshalMap(dynamoMarker{
		MessageID:  messageID,
		AdmittedAt: now.Format(time.RFC3339Nano),
		ExpiresAt:  now.Add(d.ttl).Unix(),
	})
	if err != nil {
		return false, fmt.Errorf("dedupe: marshal marker: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(messageId) OR expiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var conditionErr *types.ConditionalCheckFailedException
		if errors.As(err, &conditionErr) {
			return false, nil
		}
		return false, fmt.Errorf("dedupe: dynamodb admit: %w", err)
	}
	return true, nil
}

// Release deletes the marker item.
func (d *Dynamo) Release(ctx context.Context, messageID string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"messageId": &types.AttributeValueMemberS{Value: messageID},
		},
	})
	if err != nil {
		return fmt.Errorf("dedupe: dynamodb release: %w", err)
	}
	return nil
}
