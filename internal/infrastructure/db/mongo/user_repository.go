package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/serendip/gatekeeper/internal/core/domain"
	"github.com/serendip/gatekeeper/internal/core/ports"
)

const (
	collectionUsers = "users"

	indexUsername = "username_unique"
	indexEmail    = "email_unique"
	indexMobile   = "mobile_unique"
)

// UserRepository stores users with their tokens embedded in the user
// document.
type UserRepository struct {
	col *mongo.Collection
}

var _ ports.UserRepository = (*UserRepository)(nil)

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(collectionUsers)}
}

type tokenDoc struct {
	AccessToken  string    `bson:"access_token"`
	RefreshToken string    `bson:"refresh_token"`
	GrantType    string    `bson:"grant_type"`
	ClientID     string    `bson:"client_id,omitempty"`
	UserAgent    string    `bson:"useragent,omitempty"`
	IssuedAt     time.Time `bson:"issued_at"`
	ExpiresAt    time.Time `bson:"expires_at"`
	TokenType    string    `bson:"token_type"`
}

type userDoc struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	Username          string             `bson:"username"`
	Email             string             `bson:"email,omitempty"`
	Mobile            string             `bson:"mobile,omitempty"`
	MobileCountryCode string             `bson:"mobile_country_code,omitempty"`
	Groups            []string           `bson:"groups,omitempty"`

	PasswordHash     string `bson:"password_hash,omitempty"`
	PasswordSalt     string `bson:"password_salt,omitempty"`
	TwoFactorEnabled bool   `bson:"two_factor_enabled"`

	EmailVerified          bool   `bson:"email_verified"`
	EmailVerificationCode  string `bson:"email_verification_code,omitempty"`
	MobileVerified         bool   `bson:"mobile_verified"`
	MobileVerificationCode string `bson:"mobile_verification_code,omitempty"`

	PasswordResetToken         string    `bson:"password_reset_token"`
	PasswordResetTokenExpireAt time.Time `bson:"password_reset_token_expire_at"`
	PasswordResetTokenIssueAt  time.Time `bson:"password_reset_token_issue_at"`

	OneTimePasswordHash     string    `bson:"one_time_password_hash"`
	OneTimePasswordExpireAt time.Time `bson:"one_time_password_expire_at"`

	RegisteredAt          time.Time `bson:"registered_at"`
	RegisteredByIP        string    `bson:"registered_by_ip,omitempty"`
	RegisteredByUserAgent string    `bson:"registered_by_useragent,omitempty"`

	PasswordChangedAt          time.Time `bson:"password_changed_at"`
	PasswordChangedByIP        string    `bson:"password_changed_by_ip,omitempty"`
	PasswordChangedByUserAgent string    `bson:"password_changed_by_useragent,omitempty"`

	Tokens []tokenDoc `bson:"tokens,omitempty"`
}

func toTokenDoc(t domain.Token) tokenDoc {
	return tokenDoc{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		GrantType:    string(t.GrantType),
		ClientID:     t.ClientID,
		UserAgent:    t.UserAgent,
		IssuedAt:     t.IssuedAt.UTC(),
		ExpiresAt:    t.ExpiresAt.UTC(),
		TokenType:    t.TokenType,
	}
}

func (d tokenDoc) toDomain(userID string) domain.Token {
	return domain.Token{
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		GrantType:    domain.GrantType(d.GrantType),
		UserID:       userID,
		ClientID:     d.ClientID,
		UserAgent:    d.UserAgent,
		IssuedAt:     d.IssuedAt,
		ExpiresAt:    d.ExpiresAt,
		ExpiresIn:    int64(d.ExpiresAt.Sub(d.IssuedAt).Seconds()),
		TokenType:    d.TokenType,
	}
}

func toUserDoc(u *domain.User) userDoc {
	return userDoc{
		Username:                   u.Username,
		Email:                      u.Email,
		Mobile:                     u.Mobile,
		MobileCountryCode:          u.MobileCountryCode,
		Groups:                     nonNilGroups(u.Groups),
		PasswordHash:               u.PasswordHash,
		PasswordSalt:               u.PasswordSalt,
		TwoFactorEnabled:           u.TwoFactorEnabled,
		EmailVerified:              u.EmailVerified,
		EmailVerificationCode:      u.EmailVerificationCode,
		MobileVerified:             u.MobileVerified,
		MobileVerificationCode:     u.MobileVerificationCode,
		PasswordResetToken:         u.PasswordResetToken,
		PasswordResetTokenExpireAt: u.PasswordResetTokenExpireAt,
		PasswordResetTokenIssueAt:  u.PasswordResetTokenIssueAt,
		OneTimePasswordHash:        u.OneTimePasswordHash,
		OneTimePasswordExpireAt:    u.OneTimePasswordExpireAt,
		RegisteredAt:               u.RegisteredAt,
		RegisteredByIP:             u.RegisteredByIP,
		RegisteredByUserAgent:      u.RegisteredByUserAgent,
		PasswordChangedAt:          u.PasswordChangedAt,
		PasswordChangedByIP:        u.PasswordChangedByIP,
		PasswordChangedByUserAgent: u.PasswordChangedByUserAgent,
	}
}

// updateDoc is the $set document of Update.
func updateDoc(u *domain.User) userDoc {
	doc := toUserDoc(u)
	doc.Groups = nil
	doc.Tokens = nil
	return doc
}

func (d userDoc) toDomain() *domain.User {
	id := d.ID.Hex()
	tokens := make([]domain.Token, 0, len(d.Tokens))
	for _, t := range d.Tokens {
		tokens = append(tokens, t.toDomain(id))
	}
	return &domain.User{
		ID:                         id,
		Username:                   d.Username,
		Email:                      d.Email,
		Mobile:                     d.Mobile,
		MobileCountryCode:          d.MobileCountryCode,
		Groups:                     nonNilGroups(d.Groups),
		PasswordHash:               d.PasswordHash,
		PasswordSalt:               d.PasswordSalt,
		TwoFactorEnabled:           d.TwoFactorEnabled,
		EmailVerified:              d.EmailVerified,
		EmailVerificationCode:      d.EmailVerificationCode,
		MobileVerified:             d.MobileVerified,
		MobileVerificationCode:     d.MobileVerificationCode,
		PasswordResetToken:         d.PasswordResetToken,
		PasswordResetTokenExpireAt: d.PasswordResetTokenExpireAt,
		PasswordResetTokenIssueAt:  d.PasswordResetTokenIssueAt,
		OneTimePasswordHash:        d.OneTimePasswordHash,
		OneTimePasswordExpireAt:    d.OneTimePasswordExpireAt,
		RegisteredAt:               d.RegisteredAt,
		RegisteredByIP:             d.RegisteredByIP,
		RegisteredByUserAgent:      d.RegisteredByUserAgent,
		PasswordChangedAt:          d.PasswordChangedAt,
		PasswordChangedByIP:        d.PasswordChangedByIP,
		PasswordChangedByUserAgent: d.PasswordChangedByUserAgent,
		Tokens:                     tokens,
	}
}

func nonNilGroups(g []string) []string {
	if g == nil {
		return []string{}
	}
	return g
}

// Insert stores a new user. Unique index violations map to the matching
// domain conflict.
func (r *UserRepository) Insert(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := toUserDoc(user)
	doc.ID = primitive.NewObjectID()
	for _, t := range user.Tokens {
		doc.Tokens = append(doc.Tokens, toTokenDoc(t))
	}

	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, duplicateUserError(err)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return doc.toDomain(), nil
}

func duplicateUserError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, indexEmail):
		return domain.ErrEmailTaken
	case strings.Contains(msg, indexMobile):
		return domain.ErrMobileTaken
	default:
		return domain.ErrUsernameTaken
	}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) FindByMobile(ctx context.Context, mobile string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"mobile": mobile})
}

func (r *UserRepository) FindByAccessToken(ctx context.Context, accessToken string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"tokens.access_token": accessToken})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc userDoc
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

// Update overwrites the user's fields. The token list and the groups are
// left untouched; they change only through AppendToken, AddGroup and
// RemoveGroup, so concurrent calls to those are never lost.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	oid, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		return domain.ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": updateDoc(user)})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicateUserError(err)
		}
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// AppendToken pushes token onto the owner's token list in one atomic update.
func (r *UserRepository) AppendToken(ctx context.Context, userID string, token domain.Token) error {
	return r.modify(ctx, userID, bson.M{"$push": bson.M{"tokens": toTokenDoc(token)}}, "append token")
}

func (r *UserRepository) AddGroup(ctx context.Context, userID, group string) error {
	return r.modify(ctx, userID, bson.M{"$addToSet": bson.M{"groups": group}}, "add group")
}

func (r *UserRepository) RemoveGroup(ctx context.Context, userID, group string) error {
	return r.modify(ctx, userID, bson.M{"$pull": bson.M{"groups": group}}, "remove group")
}

func (r *UserRepository) modify(ctx context.Context, userID string, update bson.M, op string) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return domain.ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// EnsureIndexes creates the unique and lookup indexes of the users collection.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	present := func(field string) bson.M {
		return bson.M{field: bson.M{"$exists": true}}
	}

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetName(indexUsername).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(indexEmail).SetUnique(true).SetPartialFilterExpression(present("email")),
		},
		{
			Keys:    bson.D{{Key: "mobile", Value: 1}},
			Options: options.Index().SetName(indexMobile).SetUnique(true).SetPartialFilterExpression(present("mobile")),
		},
		{Keys: bson.D{{Key: "tokens.access_token", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
