package services

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/inkwell-backend/internal/billing/plans"
	"github.com/yungbote/inkwell-backend/internal/data/db"
	"github.com/yungbote/inkwell-backend/internal/data/repos"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/domain/billing"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
	"github.com/yungbote/inkwell-backend/internal/platform/ctxutil"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

const minPasswordLength = 8

type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*types.User, error)
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context) error
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	AccessTTL() time.Duration
}

type authService struct {
	db            *gorm.DB
	log           *logger.Logger
	catalog       *plans.Catalog
	userRepo      repos.UserRepo
	userTokenRepo repos.UserTokenRepo
	subRepo       repos.SubscriptionRepo
	imaging       ImagingService
	jwtSecretKey  string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	adminEmails   map[string]bool
	now           func() time.Time
}

type accessClaims struct {
	jwt.RegisteredClaims
}

func NewAuthService(
	db *gorm.DB,
	log *logger.Logger,
	catalog *plans.Catalog,
	userRepo repos.UserRepo,
	userTokenRepo repos.UserTokenRepo,
	subRepo repos.SubscriptionRepo,
	imaging ImagingService,
	jwtSecretKey string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
	adminEmails []string,
) AuthService {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = true
		}
	}
	return &authService{
		db:            db,
		log:           log.With("service", "AuthService"),
		catalog:       catalog,
		userRepo:      userRepo,
		userTokenRepo: userTokenRepo,
		subRepo:       subRepo,
		imaging:       imaging,
		jwtSecretKey:  jwtSecretKey,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		adminEmails:   admins,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// validEmail accepts a bare addr-spec only. Display-name and angle-bracket
// forms parse fine but would be stored verbatim.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func (as *authService) AccessTTL() time.Duration { return as.accessTTL }

func (as *authService) Register(ctx context.Context, in RegisterInput) (*types.User, error) {
	email := normalizeEmail(in.Email)
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if email == "" || in.Password == "" || first == "" || last == "" {
		return nil, apierr.Invalid("email, password, first_name and last_name are required")
	}
	if !validEmail(email) {
		return nil, apierr.Invalid("invalid email address")
	}
	if len(in.Password) < minPasswordLength {
		return nil, apierr.Invalid(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	exists, err := as.userRepo.EmailExists(dbctx.Context{Ctx: ctx}, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, apierr.Conflict("email_taken", "an account with this email already exists")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &types.User{
		ID:        uuid.New(),
		Email:     email,
		Password:  string(hash),
		FirstName: first,
		LastName:  last,
		IsAdmin:   as.adminEmails[email],
	}
	if as.imaging != nil {
		if err := as.imaging.EnsureUserAvatar(ctx, user); err != nil {
			as.log.Warn("Avatar generation failed; continuing without avatar", "user_id", user.ID, "error", err)
		}
	}

	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := as.userRepo.Create(dbc, []*types.User{user}); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		_, err := as.subRepo.Create(dbc, []*types.Subscription{{
			UserID:    user.ID,
			PlanKey:   as.catalog.Default().Key,
			Status:    billing.SubscriptionActive,
			StartedAt: as.now(),
		}})
		if err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		return nil
	})
	if db.IsUniqueViolation(err) {
		return nil, apierr.Conflict("email_taken", "an account with this email already exists")
	}
	if err != nil {
		return nil, err
	}
	as.log.Info("User registered", "user_id", user.ID, "admin", user.IsAdmin)
	return user, nil
}

func (as *authService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apierr.Invalid("email and password are required")
	}
	user, err := as.userRepo.GetByEmail(dbctx.Context{Ctx: ctx}, email)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	invalid := apierr.New(http.StatusUnauthorized, "invalid_credentials", fmt.Errorf("invalid email or password"))
	if user == nil {
		return nil, invalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, invalid
	}

	var pair *TokenPair
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		purged, err := as.userTokenRepo.DeleteExpired(dbc, user.ID, as.now())
		if err != nil {
			return fmt.Errorf("purge expired tokens: %w", err)
		}
		if purged > 0 {
			as.log.Debug("Purged expired tokens", "user_id", user.ID, "count", purged)
		}
		pair, err = as.issueTokens(dbc, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (as *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, apierr.Invalid("refresh_token is required")
	}
	var (
		pair      *TokenPair
		expiredID uuid.UUID
	)
	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		found, err := as.userTokenRepo.GetByRefreshTokens(dbc, []string{refreshToken})
		if err != nil {
			return fmt.Errorf("load refresh token: %w", err)
		}
		if len(found) == 0 {
			return apierr.Unauthorized("unknown refresh token")
		}
		existing := found[0]
		if !existing.ExpiresAt.After(as.now()) {
			expiredID = existing.ID
			return nil
		}
		if err := as.userTokenRepo.DeleteByIDs(dbc, []uuid.UUID{existing.ID}); err != nil {
			return fmt.Errorf("delete rotated token: %w", err)
		}
		pair, err = as.issueTokens(dbc, existing.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expiredID != uuid.Nil {
		if err := as.userTokenRepo.DeleteByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{expiredID}); err != nil {
			as.log.Warn("Failed to delete expired token", "error", err)
		}
		return nil, apierr.Unauthorized("refresh token expired")
	}
	return pair, nil
}

func (as *authService) Logout(ctx context.Context) error {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.TokenString == "" {
		return apierr.Unauthorized("not logged in")
	}
	dbc := dbctx.Context{Ctx: ctx}
	found, err := as.userTokenRepo.GetByAccessTokens(dbc, []string{rd.TokenString})
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	if len(found) == 0 {
		return nil
	}
	if err := as.userTokenRepo.DeleteByIDs(dbc, []uuid.UUID{found[0].ID}); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (as *authService) issueTokens(dbc dbctx.Context, userID uuid.UUID) (*TokenPair, error) {
	now := as.now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(as.jwtSecretKey))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	token := &types.UserToken{
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: uuid.NewString(),
		ExpiresAt:    now.Add(as.refreshTTL),
	}
	if _, err := as.userTokenRepo.Create(dbc, []*types.UserToken{token}); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    int(as.accessTTL.Seconds()),
	}, nil
}

// SetContextFromToken validates an access JWT and that its token row still
// exists, then attaches the caller to ctx.
func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if tokenString == "" {
		return ctx, apierr.Unauthorized("missing token")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(as.jwtSecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(as.now))
	if err != nil {
		return ctx, apierr.Unauthorized("invalid or expired token")
	}
	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid {
		return ctx, apierr.Unauthorized("invalid or expired token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, apierr.Unauthorized("invalid token subject")
	}

	dbc := dbctx.Context{Ctx: ctx}
	found, err := as.userTokenRepo.GetByAccessTokens(dbc, []string{tokenString})
	if err != nil {
		return ctx, fmt.Errorf("load token: %w", err)
	}
	if len(found) == 0 || found[0].UserID != userID {
		return ctx, apierr.Unauthorized("token revoked")
	}
	users, err := as.userRepo.GetByIDs(dbc, []uuid.UUID{userID})
	if err != nil {
		return ctx, fmt.Errorf("load user: %w", err)
	}
	if len(users) == 0 {
		return ctx, apierr.Unauthorized("user no longer exists")
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{
		TokenString: tokenString,
		SessionID:   found[0].ID,
		UserID:      userID,
		Email:       users[0].Email,
		IsAdmin:     users[0].IsAdmin,
	}), nil
}
