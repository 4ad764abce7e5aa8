package persistence

import (
	"context"
	"sort"
	"testing"

	"linkhealth/domain/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo keeps items per partition and serves queries one item per page.
type fakeDynamo struct {
	items   map[string]map[string]map[string]types.AttributeValue
	queries []*dynamodb.QueryInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]map[string]types.AttributeValue)}
}

func attrS(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	pk, sk := attrS(in.Item, dynamoPartitionKey), attrS(in.Item, dynamoSortKey)
	if f.items[pk] == nil {
		f.items[pk] = make(map[string]map[string]types.AttributeValue)
	}
	f.items[pk][sk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	pk, sk := attrS(in.Key, dynamoPartitionKey), attrS(in.Key, dynamoSortKey)
	return &dynamodb.GetItemOutput{Item: f.items[pk][sk]}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	copied := *in
	f.queries = append(f.queries, &copied)

	pk := attrS(in.ExpressionAttributeValues, ":pk")
	var ids []string
	for id := range f.items[pk] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if in.ExclusiveStartKey != nil {
		last := attrS(in.ExclusiveStartKey, dynamoSortKey)
		for i, id := range ids {
			if id == last {
				start = i + 1
			}
		}
	}
	if start >= len(ids) {
		return &dynamodb.QueryOutput{}, nil
	}
	item := f.items[pk][ids[start]]
	out := &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}
	if start+1 < len(ids) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			dynamoPartitionKey: &types.AttributeValueMemberS{Value: pk},
			dynamoSortKey:      &types.AttributeValueMemberS{Value: ids[start]},
		}
	}
	return out, nil
}

func TestDynamoStore_PutGet(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	store := NewDynamoStore(fake, "docs-table")

	require.NoError(t, store.Put(ctx, "docs", "a", testDoc{ID: "a", UserID: "u1", Count: 3}))
	item := fake.items["docs"]["a"]
	require.NotNil(t, item)
	assert.Equal(t, "u1", attrS(item, "userId"))

	var got testDoc
	require.NoError(t, store.Get(ctx, "docs", "a", &got))
	assert.Equal(t, testDoc{ID: "a", UserID: "u1", Count: 3}, got)

	assert.ErrorIs(t, store.Get(ctx, "docs", "b", &got), repository.ErrNotFound)
}

func TestDynamoStore_QueryPaginates(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	store := NewDynamoStore(fake, "docs-table")
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Put(ctx, "docs", id, testDoc{ID: id, UserID: "u1"}))
	}

	var got []testDoc
	require.NoError(t, store.Query(ctx, "docs", repository.Filter{"userId": "u1"}, &got))
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[2].ID)

	require.Len(t, fake.queries, 3)
	first := fake.queries[0]
	assert.Equal(t, "docs-table", aws.ToString(first.TableName))
	assert.Equal(t, "#f0 = :v0", aws.ToString(first.FilterExpression))
	assert.Equal(t, "userId", first.ExpressionAttributeNames["#f0"])
	assert.Nil(t, first.ExclusiveStartKey)
	assert.NotNil(t, fake.queries[2].ExclusiveStartKey)
}
