package repositories

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"support-hub/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	options := badger.DefaultOptions("").WithInMemory(true)
	options.Logger = nil
	db, err := badger.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func chatEntry(sender, body string, at time.Time) domain.Entry {
	return domain.NewChatEntry(domain.ChatMessage{
		ID:         uuid.New(),
		SenderID:   sender,
		SenderRole: domain.RoleUser,
		Body:       body,
		SentAt:     at,
	})
}

func Test_Append_And_ReadAll_Keeps_Append_Order(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	store := NewDeliveryStore(db, slog.Default(), 24*time.Hour)
	key := domain.ConversationFor("u1")
	otherKey := domain.ConversationFor("u2")

	// When appending entries interleaved with another key
	at := time.Now().UTC()
	for i := 0; i < 10; i++ {
		req.NoError(store.Append(key, chatEntry("u1", fmt.Sprintf("msg-%d", i), at)))
		req.NoError(store.Append(otherKey, chatEntry("u2", "noise", at)))
	}

	// Then reading is repeatable and ordered by append time
	for attempt := 0; attempt < 2; attempt++ {
		entries, err := store.ReadAll(key)
		req.NoError(err)
		req.Len(entries, 10)
		for i, e := range entries {
			req.Equal(fmt.Sprintf("msg-%d", i), e.Chat.Body)
		}
	}
}

func Test_ReadAll_Unknown_Key_Is_Empty_Not_Error(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	store := NewDeliveryStore(db, slog.Default(), 24*time.Hour)

	entries, err := store.ReadAll(domain.ConversationFor("nobody"))

	req.NoError(err)
	req.Empty(entries)
}

func Test_Log_Expires_As_A_Whole_After_Retention(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	store := NewDeliveryStore(db, slog.Default(), 24*time.Hour)
	key := domain.ConversationFor("u1")

	// Given an entry appended at T
	appendedAt := time.Now().UTC()
	store.now = func() time.Time { return appendedAt }
	req.NoError(store.Append(key, chatEntry("u1", "hello", appendedAt)))

	// Then at T + 23h59m the log is still present
	store.now = func() time.Time { return appendedAt.Add(23*time.Hour + 59*time.Minute) }
	entries, err := store.ReadAll(key)
	req.NoError(err)
	req.Len(entries, 1)

	// And at T + 24h01m the whole log is gone
	store.now = func() time.Time { return appendedAt.Add(24*time.Hour + 1*time.Minute) }
	entries, err = store.ReadAll(key)
	req.NoError(err)
	req.Empty(entries)
}

func Test_Append_Resets_The_Retention_Clock(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	store := NewDeliveryStore(db, slog.Default(), 24*time.Hour)
	key := domain.ConversationFor("u1")

	// Given a first entry at T and a second one at T + 20h
	start := time.Now().UTC()
	store.now = func() time.Time { return start }
	req.NoError(store.Append(key, chatEntry("u1", "first", start)))
	store.now = func() time.Time { return start.Add(20 * time.Hour) }
	req.NoError(store.Append(key, chatEntry("u1", "second", start.Add(20*time.Hour))))

	// Then at T + 30h (10h after the last append) both entries survive
	store.now = func() time.Time { return start.Add(30 * time.Hour) }
	entries, err := store.ReadAll(key)
	req.NoError(err)
	req.Len(entries, 2)

	// And 24h after the LAST append the whole log is gone
	store.now = func() time.Time { return start.Add(44*time.Hour + 1*time.Minute) }
	entries, err = store.ReadAll(key)
	req.NoError(err)
	req.Empty(entries)
}

func Test_Expire_Spares_A_Log_Revived_By_Concurrent_Append(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	store := NewDeliveryStore(db, slog.Default(), 24*time.Hour)
	key := domain.ConversationFor("u1")

	// Given a log past retention whose staleness was already observed,
	// as the lazy path does before deleting
	start := time.Now().UTC()
	store.now = func() time.Time { return start }
	req.NoError(store.Append(key, chatEntry("u1", "old", start)))
	store.now = func() time.Time { return start.Add(25 * time.Hour) }
	expired, err := store.isExpired(key)
	req.NoError(err)
	req.True(expired)

	// When a fresh entry lands before the delete happens
	req.NoError(store.Append(key, chatEntry("u1", "fresh", start.Add(25*time.Hour))))

	// Then the expiry backs off instead of deleting live entries
	dropped, err := store.expire(key)
	req.NoError(err)
	req.False(dropped)

	// And the whole revived log is readable, in append order
	entries, err := store.ReadAll(key)
	req.NoError(err)
	req.Len(entries, 2)
	req.Equal("old", entries[0].Chat.Body)
	req.Equal("fresh", entries[1].Chat.Body)
}

func Test_ExpireStale_Sweeps_Only_Stale_Logs(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	store := NewDeliveryStore(db, slog.Default(), 24*time.Hour)
	staleKey := domain.ConversationFor("stale")
	freshKey := domain.ConversationFor("fresh")

	start := time.Now().UTC()
	store.now = func() time.Time { return start }
	req.NoError(store.Append(staleKey, chatEntry("stale", "old", start)))
	store.now = func() time.Time { return start.Add(23 * time.Hour) }
	req.NoError(store.Append(freshKey, chatEntry("fresh", "new", start.Add(23*time.Hour))))

	// When sweeping past the stale key's retention only
	store.now = func() time.Time { return start.Add(25 * time.Hour) }
	dropped, err := store.ExpireStale()

	// Then exactly the stale log was dropped
	req.NoError(err)
	req.Equal(1, dropped)

	entries, err := store.ReadAll(staleKey)
	req.NoError(err)
	req.Empty(entries)

	entries, err = store.ReadAll(freshKey)
	req.NoError(err)
	req.Len(entries, 1)
}

func Test_Notification_Entries_Round_Trip(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	store := NewDeliveryStore(db, slog.Default(), 24*time.Hour)
	key := domain.ConversationFor("u1")

	notification := domain.Notification{
		Type:      domain.NotificationOrder,
		Title:     "Order Update",
		Message:   "Order #77 has been created successfully.",
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
	req.NoError(store.Append(key, domain.NewNotificationEntry(notification)))

	entries, err := store.ReadAll(key)
	req.NoError(err)
	req.Len(entries, 1)
	req.Equal(domain.EntryNotification, entries[0].Kind)
	req.Equal(notification.Message, entries[0].Notification.Message)
}
