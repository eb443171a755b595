// Package entitlement caches the subscription verdict for this device,
// refreshes it opportunistically while online, and enforces a bounded grace
// period offline so premium content cannot be played indefinitely on a
// device that never reconnects.
package entitlement

import (
	"context"
	"time"

	"github.com/serenity-app/serenity/internal/logging"
	"github.com/serenity-app/serenity/internal/models"
	"github.com/serenity-app/serenity/internal/remote"
	"github.com/serenity-app/serenity/internal/store"
)

// GracePeriod bounds how long a cached "valid" verdict is honored offline.
const GracePeriod = 3 * 24 * time.Hour

// State is the derived entitlement state, for display and diagnostics.
type State string

const (
	StateUnknown          State = "unknown"
	StateValid            State = "valid"
	StateInvalid          State = "invalid"
	StateValidWithinGrace State = "valid_within_grace"
	StateGraceExpired     State = "grace_expired"
)

// PremiumPurger deletes downloaded premium assets after entitlement loss.
type PremiumPurger interface {
	PurgePremiumDownloads(ctx context.Context) error
}

// Validator is the offline subscription validator.
type Validator struct {
	cache      *store.Singleton[models.SubscriptionStatus]
	api        remote.EntitlementAPI
	conn       remote.Connectivity
	purger     PremiumPurger
	signingKey []byte
	log        logging.Logger
	now        func() time.Time
}

func NewValidator(s *store.Store, api remote.EntitlementAPI, conn remote.Connectivity, signingKey []byte, log logging.Logger) *Validator {
	return &Validator{
		cache:      store.NewSingleton[models.SubscriptionStatus](s, store.CollectionSubscription),
		api:        api,
		conn:       conn,
		signingKey: signingKey,
		log:        log,
		now:        time.Now,
	}
}

// SetPurger installs the collaborator that removes premium downloads when
// entitlement is lost. Set after construction to break the cycle with the
// content service.
func (v *Validator) SetPurger(p PremiumPurger) {
	v.purger = p
}

// Initialize loads the cached status and then attempts one best-effort
// refresh. It never fails: a device that starts offline runs on cache.
func (v *Validator) Initialize(ctx context.Context) {
	st, _ := v.cache.Get(ctx)
	if st == nil {
		v.log.Info(ctx, "no cached subscription status, starting unknown")
	}
	if err := v.Refresh(ctx); err != nil {
		v.log.Warn(ctx, "initial entitlement refresh failed", "error", err)
	}
}

// Refresh fetches the entitlement token while online and overwrites the
// cached status wholesale. Offline it is a no-op with the cache unchanged.
// A refresh that lands on an invalid verdict triggers the premium purge.
func (v *Validator) Refresh(ctx context.Context) error {
	if !v.conn.IsConnected(ctx) {
		return nil
	}

	token, err := v.api.GetEntitlement(ctx)
	if err != nil {
		return err
	}

	claims, err := parseToken(token, v.signingKey)
	if err != nil {
		return err
	}

	status := models.SubscriptionStatus{
		IsValid:            claims.Active,
		Tier:               claims.Tier,
		LastVerifiedOnline: v.now().UTC(),
	}
	if claims.ExpiresAt != nil {
		expiry := claims.ExpiresAt.Time
		status.ExpiryDate = &expiry
		if expiry.Before(v.now()) {
			status.IsValid = false
		}
	}

	if err := v.cache.Put(ctx, status); err != nil {
		return err
	}
	v.log.Info(ctx, "subscription status refreshed",
		"valid", status.IsValid, "tier", status.Tier)

	if !status.IsValid && v.purger != nil {
		if err := v.purger.PurgePremiumDownloads(ctx); err != nil {
			v.log.Warn(ctx, "premium purge after entitlement loss failed", "error", err)
		}
	}

	return nil
}

// Validate reports whether content of requiredTier may be played now.
// Tier 0 always passes. Otherwise a best-effort refresh runs first, then the
// cached verdict is evaluated: invalid status, insufficient tier, past
// expiry, or a grace period exceeded offline all fail closed.
func (v *Validator) Validate(ctx context.Context, requiredTier int) bool {
	if requiredTier == 0 {
		return true
	}

	if err := v.Refresh(ctx); err != nil {
		v.log.Warn(ctx, "entitlement refresh failed, using cached verdict", "error", err)
	}

	st, _ := v.cache.Get(ctx)
	if st == nil {
		return false
	}

	now := v.now()
	switch {
	case !st.IsValid:
		return false
	case st.Tier < requiredTier:
		return false
	case st.ExpiryDate != nil && st.ExpiryDate.Before(now):
		return false
	case now.Sub(st.LastVerifiedOnline) > GracePeriod:
		return false
	}
	return true
}

// CurrentState derives the entitlement state from the cache.
func (v *Validator) CurrentState(ctx context.Context) State {
	st, _ := v.cache.Get(ctx)
	if st == nil {
		return StateUnknown
	}
	if !st.IsValid {
		return StateInvalid
	}

	now := v.now()
	if st.ExpiryDate != nil && st.ExpiryDate.Before(now) {
		return StateInvalid
	}
	if now.Sub(st.LastVerifiedOnline) > GracePeriod {
		return StateGraceExpired
	}
	if !v.conn.IsConnected(ctx) {
		return StateValidWithinGrace
	}
	return StateValid
}
