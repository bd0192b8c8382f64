package favorites

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// fakeDynamo keeps items in a map and applies the two set-update
// expressions the store uses.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]*dynamodb.AttributeValue
	puts  int
	fail  error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]*dynamodb.AttributeValue)}
}

func (f *fakeDynamo) GetItem(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	item := f.items[*in.Key["PK"].S]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) UpdateItem(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	pk := *in.Key["PK"].S
	item := f.items[pk]
	if item == nil {
		item = map[string]*dynamodb.AttributeValue{"PK": {S: aws.String(pk)}}
		f.items[pk] = item
	}
	val := *in.ExpressionAttributeValues[":t"].SS[0]
	switch *in.UpdateExpression {
	case "ADD Ids :t":
		cur := item["Ids"]
		if cur == nil {
			cur = &dynamodb.AttributeValue{}
			item["Ids"] = cur
		}
		for _, v := range cur.SS {
			if *v == val {
				return &dynamodb.UpdateItemOutput{}, nil
			}
		}
		cur.SS = append(cur.SS, aws.String(val))
	case "DELETE Ids :t":
		if cur := item["Ids"]; cur != nil {
			kept := cur.SS[:0]
			for _, v := range cur.SS {
				if *v != val {
					kept = append(kept, v)
				}
			}
			cur.SS = kept
		}
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) PutItem(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	f.puts++
	f.items[*in.Item["PK"].S] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func TestFavoritesRoundTrip(t *testing.T) {
	db := newFakeDynamo()
	s := NewWithClient(db, "tunebook-users")

	ids, err := s.GetFavorites("alice", "tunes")
	if err != nil {
		t.Fatalf("empty get: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("favorites before any add = %v", ids)
	}

	if err := s.AddFavorite("alice", "1432", "tunes"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddFavorite("alice", "27", "tunes"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddFavorite("alice", "1432", "tunes"); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	ids, err = s.GetFavorites("alice", "tunes")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("favorites = %v, want 2 entries", ids)
	}

	if err := s.RemoveFavorite("alice", "1432", "tunes"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	ids, _ = s.GetFavorites("alice", "tunes")
	if len(ids) != 1 || ids[0] != "27" {
		t.Fatalf("favorites after remove = %v, want [27]", ids)
	}
}

func TestFavoriteCategoriesAreIndependent(t *testing.T) {
	s := NewWithClient(newFakeDynamo(), "tunebook-users")

	if err := s.AddFavorite("alice", "1432", "tunes"); err != nil {
		t.Fatalf("add tune: %v", err)
	}
	if err := s.AddFavorite("alice", "88", "sessions"); err != nil {
		t.Fatalf("add session: %v", err)
	}

	tunes, _ := s.GetFavorites("alice", "tunes")
	sessions, _ := s.GetFavorites("alice", "sessions")
	if len(tunes) != 1 || tunes[0] != "1432" {
		t.Fatalf("tunes = %v, want [1432]", tunes)
	}
	if len(sessions) != 1 || sessions[0] != "88" {
		t.Fatalf("sessions = %v, want [88]", sessions)
	}

	if err := s.RemoveFavorite("alice", "1432", "sessions"); err != nil {
		t.Fatalf("cross-category remove: %v", err)
	}
	tunes, _ = s.GetFavorites("alice", "tunes")
	if len(tunes) != 1 {
		t.Fatal("remove in one category touched another")
	}
}

func TestFavoritesRequireUser(t *testing.T) {
	s := NewWithClient(newFakeDynamo(), "tunebook-users")
	if _, err := s.GetFavorites("", "tunes"); !errors.Is(err, ErrNoUser) {
		t.Fatalf("err = %v, want ErrNoUser", err)
	}
	if err := s.AddFavorite("", "1", "tunes"); !errors.Is(err, ErrNoUser) {
		t.Fatalf("err = %v, want ErrNoUser", err)
	}
}

func TestPreferencesEmptyWhenUnsaved(t *testing.T) {
	s := NewWithClient(newFakeDynamo(), "tunebook-users")
	ids, err := s.GetPreferences("alice", "1432")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("order = %v, want empty", ids)
	}
}

func TestPreferencesKeepSettingOrder(t *testing.T) {
	s := NewWithClient(newFakeDynamo(), "tunebook-users")
	want := []string{"14323", "14321", "14322"}
	if err := s.SavePreferences("alice", "1432", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetPreferences("alice", "1432")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}

	// preferences are per tune
	other, _ := s.GetPreferences("alice", "27")
	if len(other) != 0 {
		t.Fatalf("other tune's order = %v, want empty", other)
	}
}

func TestStoreErrorsSurface(t *testing.T) {
	db := newFakeDynamo()
	db.fail = errors.New("throttled")
	s := NewWithClient(db, "tunebook-users")
	if _, err := s.GetFavorites("alice", "tunes"); err == nil {
		t.Fatal("want error from failing client")
	}
	if err := s.SavePreferences("alice", "1432", nil); err == nil {
		t.Fatal("want error from failing client")
	}
}

func TestSaverCoalescesWrites(t *testing.T) {
	db := newFakeDynamo()
	s := NewWithClient(db, "tunebook-users")
	saver := NewSaver(s, 20*time.Millisecond, nil)

	saver.Save("alice", "1432", []string{"a"})
	saver.Save("alice", "1432", []string{"b", "a"})
	saver.Save("alice", "1432", []string{"c", "b", "a"})

	deadline := time.After(2 * time.Second)
	for db.putCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("debounced write never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(50 * time.Millisecond)
	if n := db.putCount(); n != 1 {
		t.Fatalf("writes = %d, want 1 coalesced write", n)
	}
	got, _ := s.GetPreferences("alice", "1432")
	if !reflect.DeepEqual(got, []string{"c", "b", "a"}) {
		t.Fatalf("persisted order = %v, want the last value", got)
	}
}

func TestSaverWritesEachPendingKey(t *testing.T) {
	db := newFakeDynamo()
	s := NewWithClient(db, "tunebook-users")
	saver := NewSaver(s, 20*time.Millisecond, nil)

	saver.Save("alice", "1432", []string{"a"})
	saver.Save("alice", "27", []string{"z"})

	deadline := time.After(2 * time.Second)
	for db.putCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("writes = %d, want one per tune", db.putCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
	first, _ := s.GetPreferences("alice", "1432")
	second, _ := s.GetPreferences("alice", "27")
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("orders = %v / %v, want both persisted", first, second)
	}
}
