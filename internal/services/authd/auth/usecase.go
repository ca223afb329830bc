package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/MishaNavrotsky/authd/internal/domain/session"
	"github.com/MishaNavrotsky/authd/internal/domain/user"
	"github.com/MishaNavrotsky/authd/internal/password"
	pg "github.com/MishaNavrotsky/authd/internal/repository/postgres"
	"github.com/MishaNavrotsky/authd/internal/token"
)

var (
	// ErrInvalidCredentials covers both "no such account" and "wrong
	// password"; the two are never distinguished to the caller.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password is too weak")
	// ErrUnauthorized is the flattened outcome for every token or
	// session-state failure. Infrastructure failures (cache, store)
	// pass through unflattened so operators can tell them apart.
	ErrUnauthorized = errors.New("unauthorized")
)

type Usecase struct {
	users  user.Repo
	cache  session.Cache
	codec  *token.Codec
	hasher *password.Hasher
}

func NewUsecase(users user.Repo, cache session.Cache, codec *token.Codec, hasher *password.Hasher) *Usecase {
	return &Usecase{users: users, cache: cache, codec: codec, hasher: hasher}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (u *Usecase) SignUp(ctx context.Context, email, plainPassword, firstName, lastName string) (*user.User, error) {
	email = normalizeEmail(email)
	if len(plainPassword) < 8 {
		return nil, ErrWeakPassword
	}

	exists, err := u.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		mSignUp.failure()
		return nil, ErrEmailExists
	}

	hash, err := u.hasher.Hash(plainPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	newUser := &user.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
	}
	if err := u.users.Create(ctx, newUser); err != nil {
		// The unique index has the final word: the exists check above
		// only narrows the race window, it does not close it.
		if errors.Is(err, pg.ErrConflict) {
			mSignUp.failure()
			return nil, ErrEmailExists
		}
		return nil, err
	}
	mSignUp.success()
	return newUser, nil
}

// SignIn verifies credentials and issues a fresh session.
// A missing account still pays for a full hash comparison so that its
// latency matches a wrong-password attempt.
func (u *Usecase) SignIn(ctx context.Context, email, plainPassword string) (*user.User, session.TokenPair, error) {
	email = normalizeEmail(email)

	rec, err := u.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pg.ErrNotFound) {
			_, _ = u.hasher.Verify(plainPassword, password.DummyHash)
			mSignIn.failure()
			return nil, session.TokenPair{}, ErrInvalidCredentials
		}
		return nil, session.TokenPair{}, err
	}

	ok, err := u.hasher.Verify(plainPassword, rec.PasswordHash)
	if err != nil || !ok {
		mSignIn.failure()
		return nil, session.TokenPair{}, ErrInvalidCredentials
	}

	pair, err := u.IssueSession(ctx, rec)
	if err != nil {
		return nil, session.TokenPair{}, err
	}
	mSignIn.success()
	return rec, pair, nil
}

// IssueSession mints a fresh access+refresh pair for the user and
// overwrites the stored jti for both token classes. Any pair issued
// earlier for this user stops validating as soon as this call returns:
// single active session, last writer wins.
func (u *Usecase) IssueSession(ctx context.Context, rec *user.User) (session.TokenPair, error) {
	accessJTI := uuid.NewString()
	refreshJTI := uuid.NewString()

	// The jti writes must land before the tokens leave the process;
	// a failed cache write aborts the issuance.
	if err := u.cache.Set(ctx, session.ClassAccess.CacheKey(rec.ID), accessJTI, u.codec.AccessTTL()); err != nil {
		return session.TokenPair{}, err
	}
	if err := u.cache.Set(ctx, session.ClassRefresh.CacheKey(rec.ID), refreshJTI, u.codec.RefreshTTL()); err != nil {
		return session.TokenPair{}, err
	}

	accessToken, err := u.codec.SignAccess(rec.Email, rec.ID, accessJTI)
	if err != nil {
		return session.TokenPair{}, err
	}
	refreshToken, err := u.codec.SignRefresh(rec.ID, refreshJTI)
	if err != nil {
		return session.TokenPair{}, err
	}

	return session.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// ValidateAccess accepts an access token only if it verifies, its jti
// is the one most recently issued for the user, and the account still
// exists.
func (u *Usecase) ValidateAccess(ctx context.Context, accessToken string) (*user.User, error) {
	claims, err := u.codec.VerifyAccess(accessToken)
	if err != nil {
		mValidate.failure()
		return nil, ErrUnauthorized
	}

	if err := u.checkJTI(ctx, session.ClassAccess, claims.UserID, claims.ID); err != nil {
		return nil, err
	}

	rec, err := u.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pg.ErrNotFound) {
			// Account deleted after issuance.
			mValidate.failure()
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	mValidate.success()
	return rec, nil
}

// SignOut deletes the stored jtis for both token classes. Every
// previously issued token for the user stops validating immediately,
// expired or not.
func (u *Usecase) SignOut(ctx context.Context, userID int64) error {
	if err := u.cache.Del(ctx, session.ClassAccess.CacheKey(userID)); err != nil {
		return err
	}
	if err := u.cache.Del(ctx, session.ClassRefresh.CacheKey(userID)); err != nil {
		return err
	}
	mSignOut.success()
	return nil
}

// Refresh rotates a session: it validates the refresh token's
// signature and jti, re-resolves the account and issues a wholly new
// pair. The presented refresh token's jti is superseded by the new
// write, so replaying it afterwards fails the jti check.
//
// Both tokens must be presented together as a matter of policy, even
// though only the refresh token's jti is actually checked. Every
// verification failure collapses into ErrUnauthorized.
func (u *Usecase) Refresh(ctx context.Context, accessToken, refreshToken string) (*user.User, session.TokenPair, error) {
	if accessToken == "" || refreshToken == "" {
		mRefresh.failure()
		return nil, session.TokenPair{}, ErrUnauthorized
	}

	claims, err := u.codec.VerifyRefresh(refreshToken)
	if err != nil {
		mRefresh.failure()
		return nil, session.TokenPair{}, ErrUnauthorized
	}

	if err := u.checkJTI(ctx, session.ClassRefresh, claims.UserID, claims.ID); err != nil {
		return nil, session.TokenPair{}, err
	}

	rec, err := u.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pg.ErrNotFound) {
			mRefresh.failure()
			return nil, session.TokenPair{}, ErrUnauthorized
		}
		return nil, session.TokenPair{}, err
	}

	pair, err := u.IssueSession(ctx, rec)
	if err != nil {
		return nil, session.TokenPair{}, err
	}
	mRefresh.success()
	return rec, pair, nil
}

// checkJTI compares the token's jti against the one currently stored
// for the (class, user) pair. A cache-tier failure is returned as-is:
// "could not check" must not read as "session invalid".
func (u *Usecase) checkJTI(ctx context.Context, class session.TokenClass, userID int64, jti string) error {
	stored, ok, err := u.cache.Get(ctx, class.CacheKey(userID))
	if err != nil {
		return err
	}
	if !ok || stored != jti {
		if class == session.ClassAccess {
			mValidate.failure()
		} else {
			mRefresh.failure()
		}
		return ErrUnauthorized
	}
	return nil
}
