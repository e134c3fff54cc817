package integration

import (
	"errors"
	"testing"
	"time"

	"github.com/ecds/dashboard/internal/platform/session"
)

type draft struct {
	Age    int    `json:"age"`
	Gender string `json:"gender"`
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, newStore func(t *testing.T) session.Store) {
	t.Run("RoundTrip", func(t *testing.T) {
		ctx := testContext(t)
		store := newStore(t)

		s := session.New(time.Hour)
		if err := s.Put("intake", draft{Age: 64, Gender: "male"}); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}

		got, err := store.Load(ctx, s.ID)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		var d draft
		ok, err := got.Get("intake", &d)
		if err != nil || !ok {
			t.Fatalf("get: ok=%v err=%v", ok, err)
		}
		if d.Age != 64 || d.Gender != "male" {
			t.Errorf("unexpected draft %+v", d)
		}
		if got.ExpiresAt.Before(time.Now().Add(50 * time.Minute)) {
			t.Errorf("expiry not preserved: %v", got.ExpiresAt)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		ctx := testContext(t)
		store := newStore(t)

		s := session.New(time.Hour)
		_ = s.Put("tab", "risk")
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
		_ = s.Put("tab", "treatment")
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("save again: %v", err)
		}

		got, err := store.Load(ctx, s.ID)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		var tab string
		if _, err := got.Get("tab", &tab); err != nil || tab != "treatment" {
			t.Errorf("expected last write to win, got %q (%v)", tab, err)
		}
	})

	t.Run("MissingIsNotFound", func(t *testing.T) {
		ctx := testContext(t)
		_, err := newStore(t).Load(ctx, "does-not-exist")
		if !errors.Is(err, session.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		ctx := testContext(t)
		store := newStore(t)

		s := session.New(time.Hour)
		_ = s.Put("step", 2)
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := store.Delete(ctx, s.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := store.Load(ctx, s.ID); !errors.Is(err, session.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})
}

func TestPGStore(t *testing.T) {
	tdb := requirePostgres(t)
	storeContract(t, func(t *testing.T) session.Store {
		return session.NewPGStore(tdb.Pool)
	})
}

func TestPGStore_ExpiredIsNotLoadedAndSwept(t *testing.T) {
	tdb := requirePostgres(t)
	ctx := testContext(t)
	store := session.NewPGStore(tdb.Pool)

	s := session.New(time.Hour)
	_ = s.Put("tab", "risk")
	s.ExpiresAt = time.Now().Add(-time.Minute)
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := store.Load(ctx, s.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected expired session to be not found, got %v", err)
	}
	n, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n < 1 {
		t.Errorf("expected at least one swept row, got %d", n)
	}
}

func TestRedisStore(t *testing.T) {
	client := requireRedis(t)
	storeContract(t, func(t *testing.T) session.Store {
		return session.NewRedisStore(client)
	})
}

func TestRedisStore_KeyExpiresWithSession(t *testing.T) {
	client := requireRedis(t)
	ctx := testContext(t)
	store := session.NewRedisStore(client)

	s := session.New(time.Hour)
	_ = s.Put("tab", "risk")
	s.ExpiresAt = time.Now().Add(2 * time.Second)
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	ttl, err := client.TTL(ctx, "cds:session:"+s.ID).Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > 2*time.Second {
		t.Errorf("expected key ttl within session lifetime, got %v", ttl)
	}
}
