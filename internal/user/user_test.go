package user

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kurious/kurio/internal/auth"
)

type fakeRepo struct {
	bySubject map[string]*User
	creates   int
	getErr    error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{bySubject: make(map[string]*User)}
}

func (f *fakeRepo) CreateUser(_ context.Context, u *User) (*User, error) {
	f.creates++
	created := *u
	created.ID = "local-1"
	f.bySubject[u.Subject] = &created
	return &created, nil
}

func (f *fakeRepo) GetUserBySubject(_ context.Context, subject string) (*User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.bySubject[subject]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func TestSyncIdentityCreatesOnFirstSight(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, zap.NewNop())

	u, err := svc.SyncIdentity(context.Background(), auth.Identity{
		Subject: "ext-1", Email: "a@b.c", Name: "Ada",
	})
	if err != nil {
		t.Fatalf("SyncIdentity: %v", err)
	}
	if u.Subject != "ext-1" || u.Email != "a@b.c" || u.Name != "Ada" {
		t.Errorf("unexpected user: %+v", u)
	}
	if repo.creates != 1 {
		t.Errorf("expected one create, got %d", repo.creates)
	}
}

func TestSyncIdentityIdempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, zap.NewNop())
	ident := auth.Identity{Subject: "ext-1", Email: "a@b.c"}

	first, err := svc.SyncIdentity(context.Background(), ident)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.SyncIdentity(context.Background(), ident)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("sync not idempotent: %q vs %q", first.ID, second.ID)
	}
	if repo.creates != 1 {
		t.Errorf("expected one create across repeated syncs, got %d", repo.creates)
	}
}

func TestSyncIdentityPropagatesStorageErrors(t *testing.T) {
	repo := newFakeRepo()
	repo.getErr = errors.New("connection lost")
	svc := NewService(repo, zap.NewNop())

	if _, err := svc.SyncIdentity(context.Background(), auth.Identity{Subject: "x"}); err == nil {
		t.Fatal("expected storage error to propagate")
	}
	if repo.creates != 0 {
		t.Error("must not create a user when the lookup failed for non-absence reasons")
	}
}
