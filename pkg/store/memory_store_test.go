package store_test

import (
	"errors"
	"testing"
	"time"

	"github.com/NicolasHaas/roomspeak/pkg/model"
	"github.com/NicolasHaas/roomspeak/pkg/store"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// withStores runs fn against every DataStore implementation.
func withStores(t *testing.T, fn func(t *testing.T, st store.DataStore)) {
	t.Helper()

	t.Run("sqlite", func(t *testing.T) {
		st, err := NewTestSqlConn(t)
		if err != nil {
			t.Fatalf("failed to open test connection: %v", err)
		}
		fn(t, st)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, store.NewMemory())
	})
}

func TestStoreBasicFlow(t *testing.T) {
	withStores(t, func(t *testing.T, st store.DataStore) {
		user, err := st.CreateUser("johndoe", model.RoleUser, testHash, testSalt)
		if err != nil {
			t.Fatalf("CreateUser: unexpected error: %v", err)
		}
		if user.ID == 0 {
			t.Fatalf("CreateUser: expected non-zero ID")
		}

		fetched, err := st.GetUserByID(user.ID)
		if err != nil {
			t.Fatalf("GetUserByID: unexpected error: %v", err)
		}
		if fetched == nil || fetched.ID != user.ID {
			t.Fatalf("GetUserByID: expected user with ID %d", user.ID)
		}

		_, err = st.CreateUser("johndoe", model.RoleUser, testHash, testSalt)
		if !errors.Is(err, store.ErrUserExists) {
			t.Fatalf("CreateUser duplicate: want ErrUserExists, got %v", err)
		}

		count, err := st.CountUsers()
		if err != nil {
			t.Fatalf("CountUsers: unexpected error: %v", err)
		}
		if count != 1 {
			t.Fatalf("CountUsers: want 1 got %d", count)
		}
	})
}

func TestStoreBans(t *testing.T) {
	withStores(t, func(t *testing.T, st store.DataStore) {
		alice, err := st.CreateUser("alice", model.RoleUser, testHash, testSalt)
		if err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		admin, err := st.CreateUser("admin", model.RoleAdmin, testHash, testSalt)
		if err != nil {
			t.Fatalf("CreateUser: %v", err)
		}

		banned, err := st.IsUserBanned(alice.ID)
		if err != nil {
			t.Fatalf("IsUserBanned: %v", err)
		}
		if banned {
			t.Fatalf("fresh account reported banned")
		}

		// Expired bans do not count.
		if err := st.CreateBan(alice.ID, "old", admin.ID, time.Now().Add(-time.Hour)); err != nil {
			t.Fatalf("CreateBan expired: %v", err)
		}
		if banned, _ = st.IsUserBanned(alice.ID); banned {
			t.Fatalf("expired ban reported active")
		}

		if err := st.CreateBan(alice.ID, "spam", admin.ID, st.ZeroTime()); err != nil {
			t.Fatalf("CreateBan: %v", err)
		}
		if banned, _ = st.IsUserBanned(alice.ID); !banned {
			t.Fatalf("permanent ban not reported")
		}
		if banned, _ = st.IsUserBanned(admin.ID); banned {
			t.Fatalf("ban leaked to another account")
		}

		bans, err := st.ListBans()
		if err != nil {
			t.Fatalf("ListBans: %v", err)
		}
		want := []model.Ban{
			{UserID: alice.ID, Reason: "old", BannedBy: admin.ID},
			{UserID: alice.ID, Reason: "spam", BannedBy: admin.ID},
		}
		if diff := cmp.Diff(want, bans, cmpopts.IgnoreFields(model.Ban{}, "ID", "ExpiresAt", "CreatedAt")); diff != "" {
			t.Fatalf("ListBans mismatch (-want +got):\n%s", diff)
		}
		if !bans[1].ExpiresAt.IsZero() {
			t.Fatalf("permanent ban has expiry %v", bans[1].ExpiresAt)
		}

		n, err := st.DeleteBans(alice.ID)
		if err != nil {
			t.Fatalf("DeleteBans: %v", err)
		}
		if n != 2 {
			t.Fatalf("DeleteBans: want 2 removed got %d", n)
		}
		if banned, _ = st.IsUserBanned(alice.ID); banned {
			t.Fatalf("ban still active after DeleteBans")
		}
	})
}

func TestMemoryStoreCopiesUsers(t *testing.T) {
	st := store.NewMemoryWithClock(func() time.Time {
		return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	})
	u, err := st.CreateUser("johndoe", model.RoleUser, testHash, testSalt)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	u.Role = model.RoleAdmin
	u.PasswordHash[0] = 'X'

	got, err := st.GetUserByUsername("johndoe")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got.IsAdmin() {
		t.Fatalf("caller mutation leaked into store")
	}
	if got.PasswordHash[0] != testHash[0] {
		t.Fatalf("password hash aliased with caller")
	}
	if want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC); !got.CreatedAt.Equal(want) {
		t.Fatalf("CreatedAt: want %v got %v", want, got.CreatedAt)
	}
}
