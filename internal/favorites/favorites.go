// Package favorites persists per-user favorite collections and
// per-tune preferences in DynamoDB. One item per user per category (or
// per tune), keyed by a composite PK string.
package favorites

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// ErrNoUser reports an operation with an empty user id.
var ErrNoUser = errors.New("empty user id")

// dynamoAPI is the consumed subset of the DynamoDB client, kept narrow
// so tests can stand in a fake.
type dynamoAPI interface {
	GetItem(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	UpdateItem(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	PutItem(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
}

// Store reads and writes user documents in one DynamoDB table.
type Store struct {
	db    dynamoAPI
	table string
}

// New connects to DynamoDB. endpoint "" uses the real service; a local
// endpoint (e.g. http://localhost:8000) targets dynamodb-local.
func New(table, region, endpoint string) (*Store, error) {
	cfg := &aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("dynamodb session: %w", err)
	}
	return &Store{db: dynamodb.New(sess), table: table}, nil
}

// NewWithClient injects a client directly; used by tests.
func NewWithClient(db dynamoAPI, table string) *Store {
	return &Store{db: db, table: table}
}

// Favorites are partitioned by category (tunes, sessions, ...) so one
// user can keep independent collections.
func favoritesPK(userID, category string) string {
	return userID + "#favorites#" + category
}

// Preferences are per tune: the user's ordering of that tune's setting
// ids, first entry on top.
func preferencesPK(userID, tuneID string) string {
	return userID + "#preferences#" + tuneID
}

func pkKey(pk string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"PK": {S: aws.String(pk)},
	}
}

// GetFavorites returns the ids in one of the user's favorite
// categories. A user with no favorites item yields an empty slice, not
// an error.
func (s *Store) GetFavorites(userID, category string) ([]string, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	out, err := s.db.GetItem(&dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       pkKey(favoritesPK(userID, category)),
	})
	if err != nil {
		return nil, fmt.Errorf("get favorites: %w", err)
	}
	attr, ok := out.Item["Ids"]
	if !ok || len(attr.SS) == 0 {
		return []string{}, nil
	}
	ids := make([]string, 0, len(attr.SS))
	for _, v := range attr.SS {
		ids = append(ids, *v)
	}
	return ids, nil
}

// AddFavorite inserts an id into one of the user's favorite categories.
// Idempotent: adding an existing id is a no-op at the store.
func (s *Store) AddFavorite(userID, id, category string) error {
	if userID == "" {
		return ErrNoUser
	}
	_, err := s.db.UpdateItem(&dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              pkKey(favoritesPK(userID, category)),
		UpdateExpression: aws.String("ADD Ids :t"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":t": {SS: []*string{aws.String(id)}},
		},
	})
	if err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	return nil
}

// RemoveFavorite deletes an id from one of the user's favorite
// categories.
func (s *Store) RemoveFavorite(userID, id, category string) error {
	if userID == "" {
		return ErrNoUser
	}
	_, err := s.db.UpdateItem(&dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              pkKey(favoritesPK(userID, category)),
		UpdateExpression: aws.String("DELETE Ids :t"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":t": {SS: []*string{aws.String(id)}},
		},
	})
	if err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	return nil
}

// GetPreferences returns the user's saved setting order for one tune,
// an empty slice when nothing was ever saved.
func (s *Store) GetPreferences(userID, tuneID string) ([]string, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	out, err := s.db.GetItem(&dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       pkKey(preferencesPK(userID, tuneID)),
	})
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	attr, ok := out.Item["OrderedSettings"]
	if !ok {
		return []string{}, nil
	}
	ids := make([]string, 0, len(attr.L))
	for _, v := range attr.L {
		if v.S != nil {
			ids = append(ids, *v.S)
		}
	}
	return ids, nil
}

// SavePreferences overwrites the user's setting order for one tune.
// A list attribute keeps the order; a string set would not.
func (s *Store) SavePreferences(userID, tuneID string, orderedIDs []string) error {
	if userID == "" {
		return ErrNoUser
	}
	list := make([]*dynamodb.AttributeValue, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		list = append(list, &dynamodb.AttributeValue{S: aws.String(id)})
	}
	item := pkKey(preferencesPK(userID, tuneID))
	item["OrderedSettings"] = &dynamodb.AttributeValue{L: list}
	_, err := s.db.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}
