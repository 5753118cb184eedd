package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"qa-assistant/internal/domain"
)

const (
	attrSessionID = "session_id"
	attrMessages  = "messages"
	attrUpdatedAt = "updated_at"
	attrTTL       = "ttl"
	attrType      = "type"
	attrContent   = "content"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore keeps one item per session, keyed by session_id, with the
// turn log in a messages list.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

type DynamoOption func(*DynamoStore)

// WithTTL stamps each saved item with an expiry attribute ttl in the future.
// Zero disables the attribute.
func WithTTL(ttl time.Duration) DynamoOption {
	return func(s *DynamoStore) {
		s.ttl = ttl
	}
}

// NewDynamoStore creates a DynamoDB-backed history store.
func NewDynamoStore(api dynamodbAPI, tableName string, opts ...DynamoOption) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	s := &DynamoStore{api: api, tableName: tableName, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load fetches the session item. A missing item or an item that cannot be
// decoded yields an empty conversation; API failures are returned.
func (s *DynamoStore) Load(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			attrSessionID: &types.AttributeValueMemberS{Value: sessionID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: DynamoStore.Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.NewConversation(sessionID), nil
	}

	records, err := itemToRecords(out.Item)
	if err != nil {
		slog.Warn("chat history item malformed, starting empty", "session_id", sessionID, "err", err)
		return domain.NewConversation(sessionID), nil
	}
	return decodeTurns(sessionID, records), nil
}

// Save upserts the session item, replacing the whole messages list.
func (s *DynamoStore) Save(ctx context.Context, sessionID string, conv *domain.Conversation) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if conv == nil {
		return errors.New("repository: DynamoStore.Save: conversation must not be nil")
	}

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      s.sessionItem(sessionID, encodeTurns(conv.Turns)),
	})
	if err != nil {
		return fmt.Errorf("repository: DynamoStore.Save put item: %w", err)
	}
	return nil
}

func (s *DynamoStore) sessionItem(sessionID string, records []messageRecord) map[string]types.AttributeValue {
	now := s.now().UTC()
	messages := make([]types.AttributeValue, 0, len(records))
	for _, r := range records {
		messages = append(messages, &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			attrType:    &types.AttributeValueMemberS{Value: r.Type},
			attrContent: &types.AttributeValueMemberS{Value: r.Content},
		}})
	}
	item := map[string]types.AttributeValue{
		attrSessionID: &types.AttributeValueMemberS{Value: sessionID},
		attrMessages:  &types.AttributeValueMemberL{Value: messages},
		attrUpdatedAt: &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
	}
	if s.ttl > 0 {
		item[attrTTL] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(s.ttl).Unix())}
	}
	return item
}

func itemToRecords(item map[string]types.AttributeValue) ([]messageRecord, error) {
	v, ok := item[attrMessages]
	if !ok {
		return nil, nil
	}
	list, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("repository: attribute %q is not a list", attrMessages)
	}

	records := make([]messageRecord, 0, len(list.Value))
	for i, entry := range list.Value {
		m, ok := entry.(*types.AttributeValueMemberM)
		if !ok {
			return nil, fmt.Errorf("repository: message %d is not a map", i)
		}
		typ, err := strAttr(m.Value, attrType)
		if err != nil {
			return nil, fmt.Errorf("repository: message %d: %w", i, err)
		}
		content, err := strAttr(m.Value, attrContent)
		if err != nil {
			return nil, fmt.Errorf("repository: message %d: %w", i, err)
		}
		records = append(records, messageRecord{Type: typ, Content: content})
	}
	return records, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}
