package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dotsetgreg/masquerade/pkg/profiles"
)

func newTestStore(t *testing.T) (*Store, *MemoryBackend) {
	t.Helper()
	mem := NewMemoryBackend()
	s, err := Open(context.Background(), mem)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s, mem
}

func mustSave(t *testing.T, s *Store, p profiles.Profile) {
	t.Helper()
	if err := s.SaveProfile(context.Background(), p); err != nil {
		t.Fatalf("save %q: %v", p.Name, err)
	}
}

func TestSaveAndGetProfile(t *testing.T) {
	s, mem := newTestStore(t)
	ctx := context.Background()

	want := profiles.Profile{UserID: "u1", Name: "bob", DisplayName: "Bob", Avatar: "https://x/a.png", Colour: "red"}
	mustSave(t, s, want)

	got, ok := s.GetProfile("u1", "bob")
	if !ok {
		t.Fatalf("expected profile")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mirror mismatch (-want +got):\n%s", diff)
	}

	stored, err := mem.LoadProfiles(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]profiles.Profile{want}, stored); diff != "" {
		t.Fatalf("backend mismatch (-want +got):\n%s", diff)
	}

	if _, ok := s.GetProfile("u2", "bob"); ok {
		t.Fatalf("profiles must be scoped to their user")
	}
}

func TestSaveProfileRejectsInvalid(t *testing.T) {
	s, mem := newTestStore(t)

	err := s.SaveProfile(context.Background(), profiles.Profile{UserID: "u1", Name: "bad name"})
	var verr *profiles.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if mem.writeCount() != 0 {
		t.Fatalf("invalid profile must not reach storage")
	}
}

func TestSaveProfileUpsertClearsFields(t *testing.T) {
	s, _ := newTestStore(t)
	mustSave(t, s, profiles.Profile{UserID: "u1", Name: "bob", DisplayName: "Bob"})
	mustSave(t, s, profiles.Profile{UserID: "u1", Name: "bob", Colour: "red"})

	got, _ := s.GetProfile("u1", "bob")
	if got.DisplayName != "" || got.Colour != "red" {
		t.Fatalf("unexpected profile after upsert: %+v", got)
	}
}

func TestGetProfilesSorted(t *testing.T) {
	s, _ := newTestStore(t)
	for _, name := range []string{"zed", "alice", "mike"} {
		mustSave(t, s, profiles.New("u1", name))
	}

	var names []string
	for _, p := range s.GetProfiles("u1") {
		names = append(names, p.Name)
	}
	if diff := cmp.Diff([]string{"alice", "mike", "zed"}, names); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if got := s.GetProfiles("nobody"); len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
}

func TestCapacityLimit(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < profiles.MaxPerUser; i++ {
		mustSave(t, s, profiles.New("u1", fmt.Sprintf("p%d", i)))
	}

	err := s.SaveProfile(ctx, profiles.New("u1", "one-more"))
	if !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
	var cerr *CapacityError
	if !errors.As(err, &cerr) || cerr.Limit != profiles.MaxPerUser {
		t.Fatalf("expected CapacityError with limit, got %v", err)
	}

	// Editing an existing name is still allowed at the limit.
	if err := s.SaveProfile(ctx, profiles.Profile{UserID: "u1", Name: "p0", DisplayName: "Zero"}); err != nil {
		t.Fatalf("edit at limit: %v", err)
	}
	// Other users are unaffected.
	mustSave(t, s, profiles.New("u2", "p0"))
}

func TestDeleteProfileIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	mustSave(t, s, profiles.New("u1", "bob"))

	p, found, err := s.DeleteProfile(ctx, "u1", "bob")
	if err != nil || !found || p.Name != "bob" {
		t.Fatalf("first delete: p=%+v found=%v err=%v", p, found, err)
	}
	_, found, err = s.DeleteProfile(ctx, "u1", "bob")
	if err != nil || found {
		t.Fatalf("second delete: found=%v err=%v", found, err)
	}
	if _, ok := s.GetProfile("u1", "bob"); ok {
		t.Fatalf("profile still in mirror")
	}
	if st := s.Stats(); st.Users != 0 || st.Profiles != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestStorageFailureLeavesMirrorUnchanged(t *testing.T) {
	s, mem := newTestStore(t)
	ctx := context.Background()
	mustSave(t, s, profiles.Profile{UserID: "u1", Name: "bob", DisplayName: "Bob"})
	if err := s.SetDefault(ctx, GlobalKey("u1"), "bob"); err != nil {
		t.Fatalf("set default: %v", err)
	}

	boom := errors.New("boom")
	mem.Fail(boom)

	err := s.SaveProfile(ctx, profiles.Profile{UserID: "u1", Name: "bob", DisplayName: "Robert"})
	if !errors.Is(err, ErrStorage) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
	if _, _, err := s.DeleteProfile(ctx, "u1", "bob"); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error on delete, got %v", err)
	}
	if err := s.SetDefault(ctx, GlobalKey("u1"), ""); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error on clear, got %v", err)
	}

	got, ok := s.GetProfile("u1", "bob")
	if !ok || got.DisplayName != "Bob" {
		t.Fatalf("mirror changed after failed write: %+v ok=%v", got, ok)
	}
	if p, ok := s.ResolveDefault("u1", "", "c1"); !ok || p.Name != "bob" {
		t.Fatalf("default changed after failed write")
	}
}

func TestResolveDefaultPrecedence(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"global", "server", "channel"} {
		mustSave(t, s, profiles.New("u1", name))
	}

	resolve := func(serverID, channelID string) string {
		p, ok := s.ResolveDefault("u1", serverID, channelID)
		if !ok {
			return ""
		}
		return p.Name
	}

	if got := resolve("s1", "c1"); got != "" {
		t.Fatalf("no defaults: got %q", got)
	}

	if err := s.SetDefault(ctx, GlobalKey("u1"), "global"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetDefault(ctx, ServerKey("u1", "s1"), "server"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetDefault(ctx, ChannelKey("u1", "c1"), "channel"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		serverID, channelID, want string
	}{
		{"s1", "c1", "channel"},
		{"s1", "c2", "server"},
		{"s2", "c2", "global"},
		{"", "dm", "global"},
		// A server default is ignored when the message has no server.
		{"", "c2", "global"},
	}
	for _, tt := range tests {
		if got := resolve(tt.serverID, tt.channelID); got != tt.want {
			t.Fatalf("resolve(%q,%q)=%q want %q", tt.serverID, tt.channelID, got, tt.want)
		}
	}

	if _, ok := s.ResolveDefault("u2", "s1", "c1"); ok {
		t.Fatalf("defaults must be scoped to their user")
	}
}

func TestResolveDefaultDanglingDoesNotFallThrough(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	mustSave(t, s, profiles.New("u1", "global"))
	mustSave(t, s, profiles.New("u1", "gone"))
	if err := s.SetDefault(ctx, GlobalKey("u1"), "global"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetDefault(ctx, ChannelKey("u1", "c1"), "gone"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.DeleteProfile(ctx, "u1", "gone"); err != nil {
		t.Fatal(err)
	}

	if p, ok := s.ResolveDefault("u1", "s1", "c1"); ok {
		t.Fatalf("dangling channel default resolved to %q", p.Name)
	}
	if p, ok := s.ResolveDefault("u1", "s1", "c2"); !ok || p.Name != "global" {
		t.Fatalf("other channels should still use the global default")
	}
}

func TestSetDefault(t *testing.T) {
	s, mem := newTestStore(t)
	ctx := context.Background()

	if err := s.SetDefault(ctx, GlobalKey("u1"), "missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}

	before := mem.writeCount()
	if err := s.SetDefault(ctx, GlobalKey("u1"), ""); err != nil {
		t.Fatalf("clear absent default: %v", err)
	}
	if mem.writeCount() != before {
		t.Fatalf("clearing an absent default must not write")
	}

	mustSave(t, s, profiles.New("u1", "bob"))
	if err := s.SetDefault(ctx, ServerKey("u1", "s1"), "bob"); err != nil {
		t.Fatalf("set: %v", err)
	}
	want := map[DefaultKey]string{ServerKey("u1", "s1"): "bob"}
	if diff := cmp.Diff(want, s.Defaults("u1")); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}

	if err := s.SetDefault(ctx, ServerKey("u1", "s1"), ""); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := s.Defaults("u1"); len(got) != 0 {
		t.Fatalf("expected no defaults, got %v", got)
	}
}

func TestRenameProfile(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	mustSave(t, s, profiles.Profile{UserID: "u1", Name: "bob", DisplayName: "Bob"})
	mustSave(t, s, profiles.New("u1", "alice"))
	if err := s.SetDefault(ctx, ChannelKey("u1", "c1"), "bob"); err != nil {
		t.Fatal(err)
	}

	if err := s.RenameProfile(ctx, "u1", "bob", profiles.Profile{Name: "alice", DisplayName: "Bob"}); !errors.Is(err, ErrProfileExists) {
		t.Fatalf("expected ErrProfileExists, got %v", err)
	}
	if err := s.RenameProfile(ctx, "u1", "nobody", profiles.Profile{Name: "carol"}); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}

	if err := s.RenameProfile(ctx, "u1", "bob", profiles.Profile{Name: "robert", DisplayName: "Bob"}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, ok := s.GetProfile("u1", "bob"); ok {
		t.Fatalf("old name still present")
	}
	got, ok := s.GetProfile("u1", "robert")
	if !ok || got.DisplayName != "Bob" || got.UserID != "u1" {
		t.Fatalf("renamed profile: %+v ok=%v", got, ok)
	}
	if p, ok := s.ResolveDefault("u1", "", "c1"); !ok || p.Name != "robert" {
		t.Fatalf("default was not re-pointed")
	}
}

func TestImportProfilesAllOrNothing(t *testing.T) {
	s, mem := newTestStore(t)
	ctx := context.Background()

	bad := []profiles.Profile{{Name: "ok"}, {Name: "not ok"}}
	if _, err := s.ImportProfiles(ctx, "u1", bad); err == nil {
		t.Fatalf("expected validation error")
	}
	if mem.writeCount() != 0 || len(s.GetProfiles("u1")) != 0 {
		t.Fatalf("nothing may be written when one profile is invalid")
	}

	for i := 0; i < profiles.MaxPerUser-1; i++ {
		mustSave(t, s, profiles.New("u1", fmt.Sprintf("p%d", i)))
	}
	over := []profiles.Profile{{Name: "new1"}, {Name: "new2"}}
	if _, err := s.ImportProfiles(ctx, "u1", over); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
	if _, ok := s.GetProfile("u1", "new1"); ok {
		t.Fatalf("partial import written")
	}

	// Overwrites of existing names do not count against the limit.
	n, err := s.ImportProfiles(ctx, "u1", []profiles.Profile{{Name: "p0", DisplayName: "Zero"}, {Name: "new1"}})
	if err != nil || n != 2 {
		t.Fatalf("import: n=%d err=%v", n, err)
	}
	if got, _ := s.GetProfile("u1", "p0"); got.DisplayName != "Zero" {
		t.Fatalf("import did not overwrite: %+v", got)
	}
}

func TestAuthors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, found, err := s.GetAuthor(ctx, "m1"); err != nil || found {
		t.Fatalf("unexpected author: found=%v err=%v", found, err)
	}
	if err := s.SetAuthor(ctx, Author{MessageID: "m1", UserID: "u1"}); err != nil {
		t.Fatalf("set author: %v", err)
	}
	a, found, err := s.GetAuthor(ctx, "m1")
	if err != nil || !found || a.UserID != "u1" {
		t.Fatalf("get author: %+v found=%v err=%v", a, found, err)
	}
}

func TestOpenReloadsFromBackend(t *testing.T) {
	s, mem := newTestStore(t)
	ctx := context.Background()
	mustSave(t, s, profiles.New("u1", "bob"))
	mustSave(t, s, profiles.New("u2", "alice"))
	if err := s.SetDefault(ctx, GlobalKey("u1"), "bob"); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(ctx, mem)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if diff := cmp.Diff(s.Stats(), reopened.Stats()); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
	if p, ok := reopened.ResolveDefault("u1", "", "c"); !ok || p.Name != "bob" {
		t.Fatalf("default not reloaded")
	}
}

func TestOpenFailure(t *testing.T) {
	mem := NewMemoryBackend()
	mem.Fail(errors.New("down"))
	if _, err := Open(context.Background(), mem); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	mustSave(t, s, profiles.New("u1", "bob"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				name := fmt.Sprintf("w%d-%d", i, j%5)
				_ = s.SaveProfile(ctx, profiles.New("u1", name))
				_ = s.SetDefault(ctx, ChannelKey("u1", name), name)
				_, _, _ = s.DeleteProfile(ctx, "u1", name)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = s.GetProfile("u1", "bob")
				_ = s.GetProfiles("u1")
				_, _ = s.ResolveDefault("u1", "s", "c")
				_ = s.Stats()
			}
		}()
	}
	wg.Wait()

	if _, ok := s.GetProfile("u1", "bob"); !ok {
		t.Fatalf("untouched profile lost")
	}
}

func TestSQLiteBackendPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "masquerade.db")

	backend, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("new sqlite backend: %v", err)
	}
	s, err := Open(ctx, backend)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	want := profiles.Profile{UserID: "u1", Name: "bob", DisplayName: "Bob", Colour: "#ff0000"}
	mustSave(t, s, want)
	mustSave(t, s, profiles.New("u1", "temp"))
	if _, _, err := s.DeleteProfile(ctx, "u1", "temp"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetDefault(ctx, ServerKey("u1", "s1"), "bob"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetDefault(ctx, ServerKey("u1", "s1"), "bob"); err != nil {
		t.Fatalf("upsert default twice: %v", err)
	}
	if err := s.SetAuthor(ctx, Author{MessageID: "m1", UserID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	backend, err = NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("reopen sqlite backend: %v", err)
	}
	s, err = Open(ctx, backend)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close(ctx)

	got := s.GetProfiles("u1")
	if diff := cmp.Diff([]profiles.Profile{want}, got); diff != "" {
		t.Fatalf("profiles mismatch (-want +got):\n%s", diff)
	}
	if p, ok := s.ResolveDefault("u1", "s1", "c1"); !ok || p.Name != "bob" {
		t.Fatalf("default not persisted")
	}
	if a, found, err := s.GetAuthor(ctx, "m1"); err != nil || !found || a.UserID != "u1" {
		t.Fatalf("author not persisted: %+v %v %v", a, found, err)
	}
}

func BenchmarkResolveDefault(b *testing.B) {
	mem := NewMemoryBackend()
	s, err := Open(context.Background(), mem)
	if err != nil {
		b.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	_ = s.SaveProfile(ctx, profiles.New("u1", "bob"))
	_ = s.SetDefault(ctx, GlobalKey("u1"), "bob")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.ResolveDefault("u1", "s1", "c1")
	}
}
