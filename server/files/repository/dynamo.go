package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"s4/server/common/apperr"
	"s4/server/files/domain"
)

const (
	// DynamoOwnerIndex is the GSI used for owner-scoped listing.
	DynamoOwnerIndex = "ownerId-listSort-index"

	// dynamoTimeLayout is fixed width so lexical order equals time order.
	dynamoTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// DynamoAPI is the subset of *dynamodb.Client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// dynamoItem is one row of the file table.
type dynamoItem struct {
	Key               string `dynamodbav:"key"`
	OwnerID           string `dynamodbav:"ownerId"`
	UploadedAt        string `dynamodbav:"uploadedAt"`
	SizeBytes         int64  `dynamodbav:"sizeBytes"`
	ContentType       string `dynamodbav:"contentType"`
	Status            string `dynamodbav:"status"`
	UploadCompletedAt string `dynamodbav:"uploadCompletedAt"`
	Sequencer         string `dynamodbav:"sequencer"`
	ETag              string `dynamodbav:"eTag"`
	ListSort          string `dynamodbav:"listSort"`
}

func listSortKey(uploadedAt time.Time, key string) string {
	return uploadedAt.UTC().Format(dynamoTimeLayout) + "#" + key
}

func toDynamoItem(rec domain.FileRecord) dynamoItem {
	rec = normalize(rec)
	return dynamoItem{
		Key:               rec.Key,
		OwnerID:           rec.OwnerID,
		UploadedAt:        rec.UploadedAt.Format(dynamoTimeLayout),
		SizeBytes:         rec.SizeBytes,
		ContentType:       rec.ContentType,
		Status:            string(rec.Status),
		UploadCompletedAt: rec.UploadCompletedAt.Format(dynamoTimeLayout),
		Sequencer:         rec.Sequencer,
		ETag:              rec.ETag,
		ListSort:          listSortKey(rec.UploadedAt, rec.Key),
	}
}

func (it dynamoItem) record() (domain.FileRecord, error) {
	uploadedAt, err := time.Parse(dynamoTimeLayout, it.UploadedAt)
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("parse uploadedAt of %q: %w", it.Key, err)
	}
	completedAt, err := time.Parse(dynamoTimeLayout, it.UploadCompletedAt)
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("parse uploadCompletedAt of %q: %w", it.Key, err)
	}
	return domain.FileRecord{
		Key:               it.Key,
		OwnerID:           it.OwnerID,
		UploadedAt:        uploadedAt,
		SizeBytes:         it.SizeBytes,
		ContentType:       it.ContentType,
		Status:            domain.Status(it.Status),
		UploadCompletedAt: completedAt,
		Sequencer:         it.Sequencer,
		ETag:              it.ETag,
	}, nil
}

type Dynamo struct {
	client DynamoAPI
	table  string
}

func NewDynamo(client DynamoAPI, table string) *Dynamo {
	return &Dynamo{client: client, table: table}
}

func (d *Dynamo) UpsertIfNewer(ctx context.Context, rec domain.FileRecord) (bool, error) {
	item, err := attributevalue.MarshalMap(toDynamoItem(rec))
	if err != nil {
		return false, fmt.Errorf("marshal file record %q: %w", rec.Key, err)
	}
	completed := item["uploadCompletedAt"]
	sequencer := item["sequencer"]

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#key) OR #completed < :completed OR (#completed = :completed AND #seq < :seq)"),
		ExpressionAttributeNames: map[string]string{
			"#key":       "key",
			"#completed": "uploadCompletedAt",
			"#seq":       "sequencer",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":completed": completed,
			":seq":       sequencer,
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, apperr.TransientDependencyFailure.Wrap(fmt.Errorf("put file record %q: %w", rec.Key, err))
	}
	return true, nil
}

func (d *Dynamo) Get(ctx context.Context, key string) (domain.FileRecord, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            map[string]types.AttributeValue{"key": &types.AttributeValueMemberS{Value: key}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.FileRecord{}, apperr.TransientDependencyFailure.Wrap(fmt.Errorf("get file record %q: %w", key, err))
	}
	if len(out.Item) == 0 {
		return domain.FileRecord{}, ErrNotFound
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return domain.FileRecord{}, fmt.Errorf("unmarshal file record %q: %w", key, err)
	}
	return item.record()
}

func (d *Dynamo) listInput(ownerID string, after *Cursor, limit int) *dynamodb.QueryInput {
	cond := "#owner = :owner"
	names := map[string]string{"#owner": "ownerId"}
	values := map[string]types.AttributeValue{":owner": &types.AttributeValueMemberS{Value: ownerID}}
	if after != nil {
		cond += " AND #sort < :after"
		names["#sort"] = "listSort"
		values[":after"] = &types.AttributeValueMemberS{Value: listSortKey(after.UploadedAt, after.Key)}
	}
	return &dynamodb.QueryInput{
		TableName:                 aws.String(d.table),
		IndexName:                 aws.String(DynamoOwnerIndex),
		KeyConditionExpression:    aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(int32(limit + 1)),
	}
}

func (d *Dynamo) List(ctx context.Context, ownerID string, after *Cursor, limit int) (Page, error) {
	limit = ClampLimit(limit)
	out, err := d.client.Query(ctx, d.listInput(ownerID, after, limit))
	if err != nil {
		return Page{}, apperr.TransientDependencyFailure.Wrap(fmt.Errorf("query file records: %w", err))
	}
	var items []dynamoItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return Page{}, fmt.Errorf("unmarshal file records: %w", err)
	}
	records := make([]domain.FileRecord, 0, len(items))
	for _, item := range items {
		if item.OwnerID != ownerID {
			continue
		}
		rec, err := item.record()
		if err != nil {
			return Page{}, err
		}
		records = append(records, rec)
	}
	return pageFrom(records, limit), nil
}

func (d *Dynamo) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(d.table),
		Key:                      map[string]types.AttributeValue{"key": &types.AttributeValueMemberS{Value: key}},
		ConditionExpression:      aws.String("attribute_exists(#key)"),
		ExpressionAttributeNames: map[string]string{"#key": "key"},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return apperr.TransientDependencyFailure.Wrap(fmt.Errorf("delete file record %q: %w", key, err))
	}
	return nil
}

// DynamoTableAdmin is the subset of *dynamodb.Client used to provision the table.
type DynamoTableAdmin interface {
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// EnsureDynamoTable creates the file table with its owner index when it does not exist.
func EnsureDynamoTable(ctx context.Context, client DynamoTableAdmin, table string) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		return nil
	}
	var missing *types.ResourceNotFoundException
	if !errors.As(err, &missing) {
		return fmt.Errorf("describe table %s: %w", table, err)
	}
	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("key"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("ownerId"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("listSort"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("key"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(DynamoOwnerIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("ownerId"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("listSort"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}
