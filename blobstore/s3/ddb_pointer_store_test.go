package s3

import (
	"context"
	"sort"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDDB implements DDBClient in memory with conditional-write semantics.
type fakeDDB struct {
	items map[string]map[uint64]string // cache_name -> version -> archive_name
}

func newFakeDDB() *fakeDDB {
	return &fakeDDB{items: make(map[string]map[uint64]string)}
}

func (f *fakeDDB) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	name := params.Item["cache_name"].(*types.AttributeValueMemberS).Value
	version, err := strconv.ParseUint(params.Item["version"].(*types.AttributeValueMemberN).Value, 10, 64)
	if err != nil {
		return nil, err
	}
	archive := params.Item["archive_name"].(*types.AttributeValueMemberS).Value

	if f.items[name] == nil {
		f.items[name] = make(map[uint64]string)
	}
	if _, exists := f.items[name][version]; exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	f.items[name][version] = archive
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDDB) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	name := params.ExpressionAttributeValues[":n"].(*types.AttributeValueMemberS).Value

	versions := make([]uint64, 0, len(f.items[name]))
	for v := range f.items[name] {
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })

	newest := versions[0]
	return &dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{{
			"cache_name":   &types.AttributeValueMemberS{Value: name},
			"version":      &types.AttributeValueMemberN{Value: strconv.FormatUint(newest, 10)},
			"archive_name": &types.AttributeValueMemberS{Value: f.items[name][newest]},
		}},
	}, nil
}

func (f *fakeDDB) DeleteItem(_ context.Context, _ *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestLatestArchiveEmpty(t *testing.T) {
	ps := NewDDBPointerStore(newFakeDDB(), "archives", "embeddings")

	_, err := ps.LatestArchive(context.Background())
	assert.ErrorIs(t, err, ErrNoArchive)
}

func TestCommitAndLatest(t *testing.T) {
	ps := NewDDBPointerStore(newFakeDDB(), "archives", "embeddings")
	ctx := context.Background()

	require.NoError(t, ps.CommitArchive(ctx, "archives/cache-001.emc"))
	require.NoError(t, ps.CommitArchive(ctx, "archives/cache-002.emc"))

	name, err := ps.LatestArchive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "archives/cache-002.emc", name)
}

func TestCommitConflict(t *testing.T) {
	ddb := newFakeDDB()
	ctx := context.Background()

	a := NewDDBPointerStore(ddb, "archives", "embeddings")
	b := NewDDBPointerStore(ddb, "archives", "embeddings")

	require.NoError(t, a.CommitArchive(ctx, "archives/from-a.emc"))

	// Simulate b racing a: b reads version 1, a commits version 2 first.
	require.NoError(t, a.CommitArchive(ctx, "archives/from-a2.emc"))
	ddb.items["embeddings"][2] = "archives/from-a2.emc"

	// b's commit targets the next free version and succeeds; a stale
	// duplicate of an existing version is rejected.
	require.NoError(t, b.CommitArchive(ctx, "archives/from-b.emc"))

	_, err := ddb.PutItem(ctx, &dynamodb.PutItemInput{
		Item: map[string]types.AttributeValue{
			"cache_name":   &types.AttributeValueMemberS{Value: "embeddings"},
			"version":      &types.AttributeValueMemberN{Value: "3"},
			"archive_name": &types.AttributeValueMemberS{Value: "dup"},
		},
	})
	require.Error(t, err)

	err = b.commitAt(ctx, 3, "dup")
	assert.ErrorIs(t, err, ErrConcurrentCommit)
}
