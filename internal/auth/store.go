package auth

import "context"

// AccountStore persists accounts keyed by a unique, normalised email.
// Lookups that find nothing return ErrNotFound; inserting or renaming onto
// a taken email returns ErrEmailInUse.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	Insert(ctx context.Context, acct *Account) error
	List(ctx context.Context) ([]Profile, error)
	Update(ctx context.Context, id string, upd ProfileUpdate) (*Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
}
