package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/internal/repository"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
	"github.com/patrickmn/go-cache"
)

type SmtpAccountStore interface {
	GetByID(ctx context.Context, id int64) (*model.SmtpAccount, error)
	FindUsableForUser(ctx context.Context, userID int64) (*model.SmtpAccount, error)
	FindGlobalDefault(ctx context.Context) (*model.SmtpAccount, error)
}

// CredentialsResolver picks the SMTP account for a campaign: the account
// assigned to the campaign, else the owner's default, else the global
// default. Results are cached for the configured TTL.
type CredentialsResolver struct {
	store SmtpAccountStore
	cache *cache.Cache
}

// NewCredentialsResolver caches nothing when ttl is not positive.
func NewCredentialsResolver(store SmtpAccountStore, ttl time.Duration) *CredentialsResolver {
	r := &CredentialsResolver{store: store}
	if ttl > 0 {
		r.cache = cache.New(ttl, 2*ttl)
	}
	return r
}

func (r *CredentialsResolver) Resolve(ctx context.Context, c *model.Campaign) (*model.SmtpCredentials, error) {
	key := cacheKey(c)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			creds := *v.(*model.SmtpCredentials)
			return &creds, nil
		}
	}

	creds, err := r.resolve(ctx, c)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Set(key, creds, cache.DefaultExpiration)
	}
	out := *creds
	return &out, nil
}

// Flush drops all cached resolutions.
func (r *CredentialsResolver) Flush() {
	if r.cache != nil {
		r.cache.Flush()
	}
}

func (r *CredentialsResolver) resolve(ctx context.Context, c *model.Campaign) (*model.SmtpCredentials, error) {
	// an explicit assignment never falls through to other accounts
	if c.SmtpAccountID != nil {
		account, err := r.store.GetByID(ctx, *c.SmtpAccountID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: assigned account %d does not exist", ErrNoSMTPCredentials, *c.SmtpAccountID)
		}
		if err != nil {
			return nil, fmt.Errorf("load smtp account: %w", err)
		}
		if err := account.Usable(); err != nil {
			return nil, err
		}
		return model.CredentialsFromAccount(account, model.CredentialSourceCampaign), nil
	}

	account, err := r.store.FindUsableForUser(ctx, c.UserID)
	if err == nil {
		return model.CredentialsFromAccount(account, model.CredentialSourceUser), nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find user smtp account: %w", err)
	}

	account, err = r.store.FindGlobalDefault(ctx)
	if err == nil {
		logger.Debug("Using global default smtp account", "user_id", c.UserID, "account_id", account.ID)
		return model.CredentialsFromAccount(account, model.CredentialSourceGlobal), nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoSMTPCredentials
	}
	return nil, fmt.Errorf("find global smtp account: %w", err)
}

func cacheKey(c *model.Campaign) string {
	if c.SmtpAccountID != nil {
		return "account:" + strconv.FormatInt(*c.SmtpAccountID, 10)
	}
	return "user:" + strconv.FormatInt(c.UserID, 10)
}
