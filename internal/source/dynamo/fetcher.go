// Package dynamo reads migration source tables from DynamoDB.
package dynamo

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"migrator/internal/metrics"
	"migrator/pkg/records"
)

// Fetcher pages through DynamoDB tables and returns rows with volatile fields
// removed and keys renamed to the underscore convention.
type Fetcher struct {
	ddb   dynamodbiface.DynamoDBAPI
	dates records.DateSchema
}

// New returns a Fetcher. dates may be nil, in which case no field is coerced.
func New(ddb dynamodbiface.DynamoDBAPI, dates records.DateSchema) *Fetcher {
	return &Fetcher{ddb: ddb, dates: dates}
}

// FetchAll scans table to the end, following LastEvaluatedKey.
// No partial result is returned on error.
func (f *Fetcher) FetchAll(ctx context.Context, table string) (out []records.Record, err error) {
	start := time.Now()
	defer func() { metrics.RecordStep("fetch", start, err) }()

	input := &dynamodb.ScanInput{TableName: aws.String(table)}
	var items []map[string]*dynamodb.AttributeValue
	pages := 0
	for {
		res, err := f.ddb.ScanWithContext(ctx, input)
		if err != nil {
			log.Printf("dynamo: scan table=%s page=%d: %v", table, pages, err)
			return nil, fmt.Errorf("dynamo: scan %s: %w", table, err)
		}
		pages++
		items = append(items, res.Items...)
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = res.LastEvaluatedKey
	}

	out, err = f.decode(table, items)
	if err != nil {
		return nil, err
	}
	log.Printf("dynamo: scanned table=%s pages=%d rows=%d", table, pages, len(out))
	metrics.RecordRows(table, len(out))
	return out, nil
}

// FetchByID queries table for rows whose hash key "id" equals id.
func (f *Fetcher) FetchByID(ctx context.Context, table, id string) (out []records.Record, err error) {
	start := time.Now()
	defer func() { metrics.RecordStep("lookup", start, err) }()

	res, err := f.ddb.QueryWithContext(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(table),
		KeyConditionExpression:   aws.String("#id = :id"),
		ExpressionAttributeNames: map[string]*string{"#id": aws.String("id")},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":id": {S: aws.String(id)},
		},
	})
	if err != nil {
		log.Printf("dynamo: query table=%s id=%s: %v", table, id, err)
		return nil, fmt.Errorf("dynamo: query %s id=%s: %w", table, id, err)
	}
	return f.decode(table, res.Items)
}

// Sample reads up to limit rows from the first scan page of table.
func (f *Fetcher) Sample(ctx context.Context, table string, limit int) ([]records.Record, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(table)}
	if limit > 0 {
		input.Limit = aws.Int64(int64(limit))
	}
	res, err := f.ddb.ScanWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("dynamo: sample %s: %w", table, err)
	}
	return f.decode(table, res.Items)
}

func (f *Fetcher) decode(table string, items []map[string]*dynamodb.AttributeValue) ([]records.Record, error) {
	dateFields := f.dates.Fields(table)

	out := make([]records.Record, 0, len(items))
	for i, item := range items {
		var raw map[string]any
		if err := dynamodbattribute.UnmarshalMap(item, &raw); err != nil {
			log.Printf("dynamo: decode table=%s item=%d: %v", table, i, err)
			return nil, fmt.Errorf("dynamo: decode %s item %d: %w", table, i, err)
		}
		rec := records.Record(raw)
		records.StripFields(rec, records.VolatileFields...)
		rec = records.RenameKeys(rec)

		for _, cerr := range records.CoerceDates(rec, dateFields) {
			log.Printf("dynamo: table=%s item=%d: %v", table, i, cerr)
		}
		out = append(out, rec)
	}
	return out, nil
}
