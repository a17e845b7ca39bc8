package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"hometracker.app/internal/ids"
	"hometracker.app/internal/obs"
)

const (
	// MinPasswordLength is the shortest password accepted for new credentials.
	MinPasswordLength = 8
	maxFieldLength    = 1000
)

// Service orchestrates credential checks and token issuance for the login,
// registration and request authentication flows.
type Service struct {
	store   AccountStore
	hasher  *Hasher
	tokens  *TokenIssuer
	log     logrus.FieldLogger
	now     func() time.Time
	maxRole int

	// dummyHash is verified against when the email is unknown.
	dummyHash string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithHasher replaces the default derivation pool.
func WithHasher(h *Hasher) ServiceOption {
	return func(s *Service) error {
		if h == nil {
			return errors.New("auth: hasher is nil")
		}
		s.hasher = h
		return nil
	}
}

// WithLogger overrides the logger used for server-side failure details.
func WithLogger(l logrus.FieldLogger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithMaxRegistrationRole caps the role a caller may request when registering.
func WithMaxRegistrationRole(role int) ServiceOption {
	return func(s *Service) error {
		if role < RoleNone {
			return fmt.Errorf("auth: invalid registration role cap %d", role)
		}
		s.maxRole = role
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store AccountStore, tokens *TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: account store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token issuer is required")
	}
	svc := &Service{
		store:   store,
		tokens:  tokens,
		log:     obs.Logger(),
		now:     time.Now,
		maxRole: RoleMember,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if svc.hasher == nil {
		svc.hasher = NewHasher(0)
	}
	dummy, err := hashPassword(ids.New(), svc.hasher.Iterations())
	if err != nil {
		return nil, fmt.Errorf("auth: prepare dummy credential: %w", err)
	}
	svc.dummyHash = dummy
	return svc, nil
}

// Tokens exposes the issuer, e.g. for the gRPC interceptor.
func (s *Service) Tokens() *TokenIssuer { return s.tokens }

// Login checks email and password and issues a token. An unknown email and a
// wrong password are both ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		obs.AuthAttempt("login", "invalid_credentials")
		return Session{}, ErrInvalidCredentials
	}

	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return Session{}, s.internal(ctx, "login", "lookup account", err)
		}
		// Unknown accounts still pay for one derivation.
		if _, err := s.hasher.Verify(ctx, password, s.dummyHash); err != nil {
			return Session{}, s.internal(ctx, "login", "verify password", err)
		}
		obs.AuthAttempt("login", "invalid_credentials")
		return Session{}, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(ctx, password, acct.PasswordHash)
	if err != nil {
		return Session{}, s.internal(ctx, "login", "verify password", err)
	}
	if !ok {
		obs.AuthAttempt("login", "invalid_credentials")
		return Session{}, ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(acct.PasswordHash) {
		s.upgradeCredential(ctx, acct.ID, password)
	}

	session, err := s.issueSession(acct.Profile.trimmed())
	if err != nil {
		return Session{}, s.internal(ctx, "login", "issue token", err)
	}
	obs.AuthAttempt("login", "success")
	return session, nil
}

// upgradeCredential replaces a legacy or under-iterated credential after a
// successful login. Failures are logged; the login itself stands.
func (s *Service) upgradeCredential(ctx context.Context, userID, password string) {
	hash, err := s.hasher.Hash(ctx, password)
	if err == nil {
		err = s.store.UpdatePassword(ctx, userID, hash)
	}
	if err != nil {
		s.log.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("credential upgrade failed")
		return
	}
	s.log.WithField("user_id", userID).Info("credential upgraded")
}

// Register creates an account and issues a token for it.
func (s *Service) Register(ctx context.Context, reg Registration) (Session, error) {
	reg = reg.normalized()
	if err := reg.validate(); err != nil {
		obs.AuthAttempt("register", "invalid_input")
		return Session{}, err
	}
	roleID := reg.RoleID
	if roleID == 0 {
		roleID = RoleNone
	}
	if roleID < RoleNone {
		return Session{}, fmt.Errorf("%w: unknown role %d", ErrInvalidInput, roleID)
	}
	if roleID > s.maxRole {
		obs.AuthAttempt("register", "forbidden")
		return Session{}, fmt.Errorf("%w: role %d cannot be self-assigned", ErrForbidden, roleID)
	}

	if _, err := s.store.FindByEmail(ctx, reg.Email); err == nil {
		obs.AuthAttempt("register", "email_in_use")
		return Session{}, ErrEmailInUse
	} else if !errors.Is(err, ErrNotFound) {
		return Session{}, s.internal(ctx, "register", "lookup account", err)
	}

	hash, err := s.hasher.Hash(ctx, reg.Password)
	if err != nil {
		return Session{}, s.internal(ctx, "register", "hash password", err)
	}

	acct := &Account{
		Profile: Profile{
			ID:              ids.New(),
			LastName:        reg.LastName,
			FirstName:       reg.FirstName,
			Email:           reg.Email,
			Username:        reg.Username,
			Phone:           reg.Phone,
			BirthDate:       reg.BirthDate,
			InscriptionDate: s.now().UTC(),
			Description:     reg.Description,
			RoleID:          roleID,
		},
		PasswordHash: hash,
	}
	if err := s.store.Insert(ctx, acct); err != nil {
		// The store enforces uniqueness atomically; a concurrent registration
		// for the same email lands here.
		if errors.Is(err, ErrEmailInUse) {
			obs.AuthAttempt("register", "email_in_use")
			return Session{}, ErrEmailInUse
		}
		return Session{}, s.internal(ctx, "register", "insert account", err)
	}

	session, err := s.issueSession(acct.Profile)
	if err != nil {
		return Session{}, s.internal(ctx, "register", "issue token", err)
	}
	obs.AuthAttempt("register", "success")
	return session, nil
}

// Authenticate resolves an Authorization header into the identity it carries.
func (s *Service) Authenticate(ctx context.Context, header string) (Identity, error) {
	token, err := BearerToken(header)
	if err != nil {
		obs.AuthAttempt("authenticate", "missing_token")
		return Identity{}, ErrAuthenticationRequired
	}
	id, err := s.tokens.Verify(token)
	if err != nil {
		obs.AuthAttempt("authenticate", "invalid_token")
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}

// Refresh reissues token with a fresh validity window.
func (s *Service) Refresh(ctx context.Context, token string) (Token, error) {
	next, err := s.tokens.Refresh(token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			obs.AuthAttempt("refresh", "invalid_token")
			return Token{}, ErrInvalidToken
		}
		return Token{}, s.internal(ctx, "refresh", "issue token", err)
	}
	obs.AuthAttempt("refresh", "success")
	return next, nil
}

// ChangePassword replaces the credential of userID after checking current.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := validatePassword(next); err != nil {
		return err
	}
	acct, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.internal(ctx, "change_password", "lookup account", err)
	}
	ok, err := s.hasher.Verify(ctx, current, acct.PasswordHash)
	if err != nil {
		return s.internal(ctx, "change_password", "verify password", err)
	}
	if !ok {
		obs.AuthAttempt("change_password", "invalid_credentials")
		return ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash(ctx, next)
	if err != nil {
		return s.internal(ctx, "change_password", "hash password", err)
	}
	if err := s.store.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.internal(ctx, "change_password", "store credential", err)
	}
	obs.AuthAttempt("change_password", "success")
	return nil
}

// Profile returns the public view of one account.
func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	acct, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, s.internal(ctx, "profile", "lookup account", err)
	}
	return acct.Profile.trimmed(), nil
}

// ListProfiles returns every account's public view.
func (s *Service) ListProfiles(ctx context.Context) ([]Profile, error) {
	profiles, err := s.store.List(ctx)
	if err != nil {
		return nil, s.internal(ctx, "list_profiles", "list accounts", err)
	}
	for i := range profiles {
		profiles[i] = profiles[i].trimmed()
	}
	return profiles, nil
}

// UpdateProfile applies upd to the account of userID.
func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (Profile, error) {
	upd, err := normalizeUpdate(upd)
	if err != nil {
		return Profile{}, err
	}
	acct, err := s.store.Update(ctx, userID, upd)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return Profile{}, ErrNotFound
		case errors.Is(err, ErrEmailInUse):
			return Profile{}, ErrEmailInUse
		}
		return Profile{}, s.internal(ctx, "update_profile", "update account", err)
	}
	return acct.Profile.trimmed(), nil
}

// DeleteAccount removes the account of userID.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.internal(ctx, "delete_account", "delete account", err)
	}
	return nil
}

func (s *Service) issueSession(p Profile) (Session, error) {
	tok, err := s.tokens.Issue(p.Identity())
	if err != nil {
		return Session{}, err
	}
	return Session{Profile: p, Token: tok}, nil
}

// internal logs the underlying fault and returns an error that only exposes
// ErrInternal to callers that render it.
func (s *Service) internal(ctx context.Context, op, step string, err error) error {
	obs.AuthAttempt(op, "internal_error")
	fields := logrus.Fields{"op": op, "step": step, "error": err.Error()}
	if uid, ok := UserIDFromContext(ctx); ok {
		fields["user_id"] = uid
	}
	s.log.WithFields(fields).Error("auth operation failed")
	return fmt.Errorf("%w: %s: %w", ErrInternal, step, err)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. The header must be exactly the scheme, one space and the
// token.
func BearerToken(header string) (string, error) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", ErrAuthenticationRequired
	}
	return parts[1], nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r Registration) normalized() Registration {
	r.LastName = strings.TrimSpace(r.LastName)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.Email = normalizeEmail(r.Email)
	r.Username = strings.TrimSpace(r.Username)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Description = strings.TrimSpace(r.Description)
	return r
}

func (r Registration) validate() error {
	switch {
	case r.LastName == "":
		return fmt.Errorf("%w: lastName is required", ErrInvalidInput)
	case r.FirstName == "":
		return fmt.Errorf("%w: firstName is required", ErrInvalidInput)
	}
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	for name, v := range map[string]string{
		"lastName":    r.LastName,
		"firstName":   r.FirstName,
		"username":    r.Username,
		"phone":       r.Phone,
		"description": r.Description,
	} {
		if utf8.RuneCountInString(v) > maxFieldLength {
			return fmt.Errorf("%w: %s is too long", ErrInvalidInput, name)
		}
	}
	return validatePassword(r.Password)
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: email is malformed", ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	if len(password) > maxFieldLength {
		return fmt.Errorf("%w: password is too long", ErrInvalidInput)
	}
	return nil
}

func normalizeUpdate(upd ProfileUpdate) (ProfileUpdate, error) {
	trim := func(p *string) *string {
		if p == nil {
			return nil
		}
		v := strings.TrimSpace(*p)
		return &v
	}
	upd.LastName = trim(upd.LastName)
	upd.FirstName = trim(upd.FirstName)
	upd.Username = trim(upd.Username)
	upd.Phone = trim(upd.Phone)
	upd.Description = trim(upd.Description)
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if err := validateEmail(email); err != nil {
			return ProfileUpdate{}, err
		}
		upd.Email = &email
	}
	if upd.LastName != nil && *upd.LastName == "" {
		return ProfileUpdate{}, fmt.Errorf("%w: lastName cannot be empty", ErrInvalidInput)
	}
	if upd.FirstName != nil && *upd.FirstName == "" {
		return ProfileUpdate{}, fmt.Errorf("%w: firstName cannot be empty", ErrInvalidInput)
	}
	return upd, nil
}
