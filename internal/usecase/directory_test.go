package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/chatvault/internal/domain"
	"github.com/user/chatvault/internal/domain/mocks"
)

func TestResolveUserID(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("prefers the archive over the directory", func(t *testing.T) {
		repo := &mocks.MockMessageRepository{
			Rows: []domain.Message{{ChannelID: "1", UserID: "42", UserLogin: "somename", Timestamp: base.UnixMilli()}},
		}
		directory := &mocks.MockUserDirectory{LookupErr: errors.New("directory must not be called")}
		uc := NewDirectoryUseCase(repo, directory, testLogger)

		id, err := uc.ResolveUserID(context.Background(), "somename")
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if id != "42" {
			t.Errorf("expected id 42, got %q", id)
		}
	})

	t.Run("falls back to the directory for unseen names", func(t *testing.T) {
		directory := &mocks.MockUserDirectory{IDsByName: map[string]string{"newname": "99"}}
		uc := NewDirectoryUseCase(&mocks.MockMessageRepository{}, directory, testLogger)

		id, err := uc.ResolveUserID(context.Background(), "newname")
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if id != "99" {
			t.Errorf("expected id 99, got %q", id)
		}
	})

	t.Run("unknown everywhere", func(t *testing.T) {
		uc := NewDirectoryUseCase(&mocks.MockMessageRepository{}, &mocks.MockUserDirectory{}, testLogger)

		_, err := uc.ResolveUserID(context.Background(), "ghost")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
