package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DDBClient is the subset of the DynamoDB API the pointer store uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// ErrConcurrentCommit is returned when another writer committed the same
// archive version first.
var ErrConcurrentCommit = errors.New("concurrent archive commit detected")

// ErrNoArchive is returned by LatestArchive when no archive has been
// committed for the cache yet.
var ErrNoArchive = errors.New("no committed archive")

// DDBPointerStore tracks the latest committed archive for a cache in
// DynamoDB. S3 has no compare-and-swap, so an archive upload followed by
// a crash could otherwise leave readers guessing which object is
// complete; the pointer is only advanced after the upload finishes, with
// a conditional write that rejects concurrent committers.
//
// Table schema:
//   - Partition key: cache_name (string)
//   - Sort key: version (number), monotonically increasing
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name embedcache-archives \
//	  --attribute-definitions AttributeName=cache_name,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=cache_name,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBPointerStore struct {
	client    DDBClient
	tableName string
	cacheName string
}

// NewDDBPointerStore creates a pointer store for the named cache.
func NewDDBPointerStore(client DDBClient, tableName, cacheName string) *DDBPointerStore {
	return &DDBPointerStore{
		client:    client,
		tableName: tableName,
		cacheName: cacheName,
	}
}

// LatestArchive returns the blob name of the newest committed archive.
func (s *DDBPointerStore) LatestArchive(ctx context.Context) (string, error) {
	_, name, err := s.latest(ctx)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", ErrNoArchive
	}
	return name, nil
}

// CommitArchive records archiveName as the newest archive. Call it only
// after the archive upload has completed.
func (s *DDBPointerStore) CommitArchive(ctx context.Context, archiveName string) error {
	currentVersion, _, err := s.latest(ctx)
	if err != nil {
		return err
	}

	return s.commitAt(ctx, currentVersion+1, archiveName)
}

func (s *DDBPointerStore) commitAt(ctx context.Context, version uint64, archiveName string) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"cache_name":   &types.AttributeValueMemberS{Value: s.cacheName},
			"version":      &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
			"archive_name": &types.AttributeValueMemberS{Value: archiveName},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentCommit
		}
		return fmt.Errorf("failed to commit archive pointer: %w", err)
	}

	return nil
}

func (s *DDBPointerStore) latest(ctx context.Context) (uint64, string, error) {
	resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("cache_name = :n"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n": &types.AttributeValueMemberS{Value: s.cacheName},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("failed to query archive pointer: %w", err)
	}

	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("invalid version attribute in pointer table")
	}
	nameAttr, ok := item["archive_name"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("invalid archive_name attribute in pointer table")
	}

	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("failed to parse archive version: %w", err)
	}

	return version, nameAttr.Value, nil
}
