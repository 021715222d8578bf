package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ombra-im/ombra-go/internal/configstore"
	"github.com/ombra-im/ombra-go/internal/wire"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Dir(path)); os.IsNotExist(err) {
		t.Fatal("directory should have been created")
	}
}

func TestGroupRoundTrip(t *testing.T) {
	s := tempStore(t)

	err := s.WithTx(func(tx *Tx) error {
		return tx.UpsertGroup(&Group{
			GroupID:     "03aa",
			Name:        "book club",
			AuthToken:   []byte{1, 2, 3},
			Invited:     true,
			ShouldPoll:  false,
			CreatedAtMs: 1000,
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	g, err := s.GetGroup("03aa")
	if err != nil {
		t.Fatal(err)
	}
	if g == nil {
		t.Fatal("group should exist")
	}
	if g.Name != "book club" || !g.Invited || g.ShouldPoll {
		t.Fatalf("unexpected group: %+v", g)
	}
	if g.IsAdmin() {
		t.Fatal("auth-token group should not be admin")
	}

	missing, err := s.GetGroup("03zz")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Fatal("missing group should be nil")
	}
}

func TestGroupAdminSeedAuthTokenExclusive(t *testing.T) {
	s := tempStore(t)
	err := s.WithTx(func(tx *Tx) error {
		return tx.UpsertGroup(&Group{GroupID: "03aa", AdminSeed: []byte{1}, AuthToken: []byte{2}})
	})
	if err == nil {
		t.Fatal("expected error for seed+token group")
	}
}

func TestMemberStatusForwardOnly(t *testing.T) {
	s := tempStore(t)

	put := func(status configstore.RoleStatus) error {
		return s.WithTx(func(tx *Tx) error {
			return tx.UpsertMember(&Member{GroupID: "03aa", ProfileID: "05bb", RoleStatus: status})
		})
	}

	if err := put(configstore.StatusPending); err != nil {
		t.Fatal(err)
	}
	if err := put(configstore.StatusAccepted); err != nil {
		t.Fatal(err)
	}
	// Same status again is fine (redelivery).
	if err := put(configstore.StatusAccepted); err != nil {
		t.Fatal(err)
	}
	// Regression is not.
	err := put(configstore.StatusPending)
	if !errors.Is(err, ErrStatusRegression) {
		t.Fatalf("got %v, want ErrStatusRegression", err)
	}
}

func TestReplaceMembersBypassesGuard(t *testing.T) {
	s := tempStore(t)

	err := s.WithTx(func(tx *Tx) error {
		if err := tx.UpsertMember(&Member{GroupID: "03aa", ProfileID: "05bb", RoleStatus: configstore.StatusAccepted}); err != nil {
			return err
		}
		// Projection rewrites from the authoritative config, even downward.
		return tx.ReplaceMembers("03aa", []*Member{
			{ProfileID: "05bb", RoleStatus: configstore.StatusPending},
			{ProfileID: "05cc", RoleStatus: configstore.StatusPending},
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.WithTx(func(tx *Tx) error {
		members, err := tx.ListMembers("03aa")
		if err != nil {
			return err
		}
		if len(members) != 2 {
			t.Fatalf("members: got %d, want 2", len(members))
		}
		if members[0].RoleStatus != configstore.StatusPending {
			t.Fatalf("status: got %v, want pending", members[0].RoleStatus)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestThreadUpsertIdempotent(t *testing.T) {
	s := tempStore(t)

	err := s.WithTx(func(tx *Tx) error {
		created, err := tx.UpsertThread(&Thread{ThreadID: "03aa", Variant: wire.ThreadGroup, CreatedAtMs: 1})
		if err != nil {
			return err
		}
		if !created {
			t.Fatal("first upsert should create")
		}
		created, err = tx.UpsertThread(&Thread{ThreadID: "03aa", Variant: wire.ThreadGroup, CreatedAtMs: 2})
		if err != nil {
			return err
		}
		if created {
			t.Fatal("second upsert should not create")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBlankInteractions(t *testing.T) {
	s := tempStore(t)

	seed := []*Interaction{
		{ThreadID: "03aa", AuthorID: "05x", Body: "one", TimestampMs: 100, ServerHash: "H1"},
		{ThreadID: "03aa", AuthorID: "05x", Body: "two", TimestampMs: 200, ServerHash: "H2"},
		{ThreadID: "03aa", AuthorID: "05x", Body: "late", TimestampMs: 900, ServerHash: "H3"},
		{ThreadID: "03aa", AuthorID: "05y", Body: "other", TimestampMs: 150, ServerHash: "H4"},
	}
	err := s.WithTx(func(tx *Tx) error {
		for _, i := range seed {
			if _, err := tx.InsertInteraction(i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// Blank everything authored by 05x at or before t=500.
	err = s.WithTx(func(tx *Tx) error {
		n, err := tx.BlankInteractions("03aa", nil, []string{"05x"}, 500, "")
		if err != nil {
			return err
		}
		if n != 2 {
			t.Fatalf("blanked: got %d, want 2", n)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.WithTx(func(tx *Tx) error {
		all, err := tx.ListInteractions("03aa")
		if err != nil {
			return err
		}
		for _, i := range all {
			switch i.ServerHash {
			case "H1", "H2":
				if i.Body != "" {
					t.Fatalf("%s should be blanked, got %q", i.ServerHash, i.Body)
				}
			case "H3":
				if i.Body != "late" {
					t.Fatal("later content must never be touched")
				}
			case "H4":
				if i.Body != "other" {
					t.Fatal("other authors must be untouched")
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBlankInteractionsSelfServeScope(t *testing.T) {
	s := tempStore(t)

	err := s.WithTx(func(tx *Tx) error {
		if _, err := tx.InsertInteraction(&Interaction{ThreadID: "03aa", AuthorID: "05x", Body: "mine", TimestampMs: 100, ServerHash: "H1"}); err != nil {
			return err
		}
		if _, err := tx.InsertInteraction(&Interaction{ThreadID: "03aa", AuthorID: "05y", Body: "theirs", TimestampMs: 100, ServerHash: "H2"}); err != nil {
			return err
		}
		// 05x asks for both hashes but may only touch its own content.
		n, err := tx.BlankInteractions("03aa", []string{"H1", "H2"}, nil, 500, "05x")
		if err != nil {
			return err
		}
		if n != 1 {
			t.Fatalf("blanked: got %d, want 1", n)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := tempStore(t)

	wantErr := errors.New("boom")
	err := s.WithTx(func(tx *Tx) error {
		if err := tx.UpsertGroup(&Group{GroupID: "03aa"}); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want boom", err)
	}

	g, err := s.GetGroup("03aa")
	if err != nil {
		t.Fatal(err)
	}
	if g != nil {
		t.Fatal("rolled-back group should not exist")
	}
}

func TestConfigDumps(t *testing.T) {
	s := tempStore(t)

	err := s.WithTx(func(tx *Tx) error {
		if err := tx.SaveConfigDump("03aa", configstore.KindInfo, []byte{1, 2}); err != nil {
			return err
		}
		if err := tx.SaveConfigDump("03aa", configstore.KindMembers, []byte{3}); err != nil {
			return err
		}
		data, err := tx.GetConfigDump("03aa", configstore.KindInfo)
		if err != nil {
			return err
		}
		if len(data) != 2 {
			t.Fatalf("dump length: got %d, want 2", len(data))
		}
		if err := tx.DeleteConfigDumps("03aa"); err != nil {
			return err
		}
		data, err = tx.GetConfigDump("03aa", configstore.KindInfo)
		if err != nil {
			return err
		}
		if data != nil {
			t.Fatal("dumps should be deleted")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
