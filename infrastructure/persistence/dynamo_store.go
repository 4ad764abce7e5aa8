package persistence

import (
	"context"
	"fmt"

	"linkhealth/domain/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	dynamoPartitionKey = "collection"
	dynamoSortKey      = "docId"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps every collection in one table keyed by (collection, docId).
// Document fields are stored as top-level attributes named after their json tags.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

func withJSONTags(o *attributevalue.EncoderOptions) { o.TagKey = "json" }

func withJSONTagsDecode(o *attributevalue.DecoderOptions) { o.TagKey = "json" }

func (s *DynamoStore) key(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamoPartitionKey: &types.AttributeValueMemberS{Value: collection},
		dynamoSortKey:      &types.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoStore) Put(ctx context.Context, collection, id string, doc any) error {
	item, err := attributevalue.MarshalMapWithOptions(doc, withJSONTags)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	for k, v := range s.key(collection, id) {
		item[k] = v
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, collection, id string, out any) error {
	res, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if len(res.Item) == 0 {
		return repository.ErrNotFound
	}
	return attributevalue.UnmarshalMapWithOptions(res.Item, out, withJSONTagsDecode)
}

func (s *DynamoStore) Query(ctx context.Context, collection string, filter repository.Filter, out any) error {
	keys, err := filterKeys(filter)
	if err != nil {
		return err
	}
	names := map[string]string{"#pk": dynamoPartitionKey}
	values := map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: collection}}
	var filterExpr string
	for i, k := range keys {
		name, placeholder := fmt.Sprintf("#f%d", i), fmt.Sprintf(":v%d", i)
		names[name] = k
		av, err := attributevalue.Marshal(filter[k])
		if err != nil {
			return fmt.Errorf("encode filter %s: %w", k, err)
		}
		values[placeholder] = av
		if filterExpr != "" {
			filterExpr += " AND "
		}
		filterExpr += name + " = " + placeholder
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String("#pk = :pk"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConsistentRead:            aws.Bool(true),
	}
	if filterExpr != "" {
		input.FilterExpression = aws.String(filterExpr)
	}

	var items []map[string]types.AttributeValue
	for {
		res, err := s.client.Query(ctx, input)
		if err != nil {
			return fmt.Errorf("query %s: %w", collection, err)
		}
		items = append(items, res.Items...)
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = res.LastEvaluatedKey
	}
	return attributevalue.UnmarshalListOfMapsWithOptions(items, out, withJSONTagsDecode)
}
