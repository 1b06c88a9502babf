package session

import (
	"sync"
	"testing"
	"time"

	"github.com/iftv-ott/iftv_client/internal/identity"
)

func sampleSession() Session {
	return Session{
		MobileNumber: "9876543210",
		AuthToken:    "tok-abc",
		LoginTime:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		User:         identity.Profile{"name": "Jane"},
	}
}

func TestStoreLifecycle(t *testing.T) {
	store := NewStore()
	if store.Get() != nil {
		t.Fatal("new store should be logged out")
	}

	store.Commit(sampleSession())
	got := store.Get()
	if got == nil || got.AuthToken != "tok-abc" {
		t.Fatalf("unexpected session %+v", got)
	}

	if !store.MutateUser(identity.Profile{"email": "jane@example.com"}) {
		t.Fatal("mutate should apply to an existing session")
	}
	got = store.Get()
	if got.User["name"] != "Jane" || got.User["email"] != "jane@example.com" {
		t.Fatalf("unexpected user %v", got.User)
	}

	store.Clear()
	if store.Get() != nil {
		t.Fatal("clear should log out")
	}
	if store.MutateUser(identity.Profile{"email": "x"}) {
		t.Fatal("mutate without session must be a no-op")
	}
	if store.Get() != nil {
		t.Fatal("mutate must not create a session")
	}
}

func TestStoreCommitReplacesWholesale(t *testing.T) {
	store := NewStore()
	store.Commit(sampleSession())

	next := Session{MobileNumber: "9999999999", AuthToken: "tok-2", LoginTime: time.Now()}
	store.Commit(next)

	got := store.Get()
	if got.AuthToken != "tok-2" || got.User != nil {
		t.Fatalf("commit must not merge with the previous session, got %+v", got)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewStore()
	sess := sampleSession()
	store.Commit(sess)

	sess.User["name"] = "mutated after commit"
	got := store.Get()
	got.User["name"] = "mutated after get"

	if store.Get().User["name"] != "Jane" {
		t.Fatal("store must not alias caller maps")
	}
}

func TestStoreReturnsDeepCopies(t *testing.T) {
	store := NewStore()
	sess := sampleSession()
	sess.User["address"] = map[string]any{"city": "Pune"}
	sess.User["tags"] = []any{"vip", map[string]any{"tier": "gold"}}
	store.Commit(sess)

	got := store.Get()
	got.User["address"].(map[string]any)["city"] = "mutated"
	got.User["tags"].([]any)[1].(map[string]any)["tier"] = "mutated"

	fresh := store.Get().User
	if fresh["address"].(map[string]any)["city"] != "Pune" {
		t.Fatalf("nested object aliased: %v", fresh["address"])
	}
	if fresh["tags"].([]any)[1].(map[string]any)["tier"] != "gold" {
		t.Fatalf("nested array aliased: %v", fresh["tags"])
	}
}

func TestStoreConcurrentCommitsStayConsistent(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok := "tok-" + string(rune('a'+i))
			store.Commit(Session{MobileNumber: "9876543210", AuthToken: tok, User: identity.Profile{"token": tok}})
			store.MutateUser(identity.Profile{"seen": true})
		}(i)
	}
	wg.Wait()

	got := store.Get()
	if got == nil {
		t.Fatal("expected a session")
	}
	if got.User["token"] != got.AuthToken {
		t.Fatalf("session is a mix of two commits: %+v", got)
	}
}

func TestBaseProfile(t *testing.T) {
	base := sampleSession().BaseProfile()
	if base["mobileNumber"] != "9876543210" || base["token"] != "tok-abc" || base["loginTime"] != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected base profile %v", base)
	}
	if len(base) != 3 {
		t.Fatalf("base profile has extra fields: %v", base)
	}
}
