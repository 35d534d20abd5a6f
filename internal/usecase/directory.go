package usecase

import (
	"context"
	"log/slog"

	"github.com/user/chatvault/internal/domain"
)

// DirectoryUseCase resolves channel and user names to ids, preferring
// names already seen in the archive over calls to the external directory.
type DirectoryUseCase struct {
	repo      domain.MessageRepository
	directory domain.UserDirectory
	logger    *slog.Logger
}

// NewDirectoryUseCase creates a new DirectoryUseCase.
func NewDirectoryUseCase(repo domain.MessageRepository, directory domain.UserDirectory, logger *slog.Logger) *DirectoryUseCase {
	return &DirectoryUseCase{
		repo:      repo,
		directory: directory,
		logger:    logger.With("component", "directory_usecase"),
	}
}

// ResolveUserID turns a login name into a user id, or ErrNotFound when
// neither the archive nor the directory knows the name.
func (uc *DirectoryUseCase) ResolveUserID(ctx context.Context, login string) (string, error) {
	id, err := uc.repo.UserIDByLogin(ctx, login)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id, err = uc.directory.UserIDByName(ctx, login)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", domain.ErrNotFound
	}
	return id, nil
}

// NamesByID maps user ids to their current login names.
func (uc *DirectoryUseCase) NamesByID(ctx context.Context, ids []string) (map[string]string, error) {
	return uc.directory.UsersByID(ctx, ids)
}
