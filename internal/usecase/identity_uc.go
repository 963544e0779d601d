package usecase

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/logging"
)

// Compile-time check
var _ IdentityUseCase = (*identityUC)(nil)

// Client list orderings accepted by ListClients.
const (
	SortByDate   = "date"
	SortByName   = "name"
	SortByStatus = "status"
)

// StatusBlocked is the label StatusLabel reports for blocked users.
const StatusBlocked = "blocked"

type IdentityUseCase interface {
	// EnsureIdentity registers tgID or refreshes its username. A non-zero
	// referredBy is recorded only while the user has no referrer yet.
	EnsureIdentity(ctx context.Context, tgID int64, username string, referredBy int64) (*model.User, error)
	// MergePendingToIdentity copies staged flags for username onto tgID once.
	MergePendingToIdentity(ctx context.Context, tgID int64, username string) error
	ReferralPercent(ctx context.Context, tgID int64) (float64, error)
	PendingReferralPercent(ctx context.Context, username string) (float64, error)
	// FullInfo reads a registered user when tgID is set, else the staged identity of username.
	FullInfo(ctx context.Context, tgID int64, username string) (*model.ClientInfo, error)
	StatusLabel(ctx context.Context, tgID int64) (string, error)

	SetRole(ctx context.Context, tgID int64, role string) (bool, error)
	SetBlocked(ctx context.Context, tgID int64, blocked bool) (bool, error)
	SetCustomDiscount(ctx context.Context, tgID int64, pct *float64) (bool, error)
	SetPendingRole(ctx context.Context, username, role string) error
	SetPendingBlocked(ctx context.Context, username string, blocked bool) error
	SetPendingDiscount(ctx context.Context, username string, pct *float64) error

	ListReferrals(ctx context.Context, tgID int64) ([]*model.Referral, error)
	ListClients(ctx context.Context, sortBy string) ([]*model.ClientInfo, error)
}

type identityUC struct {
	users       repository.UserRepository
	pending     repository.PendingUserRepository
	referrals   repository.ReferralRepository
	payouts     repository.PayoutRepository
	codes       repository.CodeRepository
	activations repository.ActivationRepository
	tm          repository.TransactionManager
	log         *zerolog.Logger
}

func NewIdentityUseCase(
	users repository.UserRepository,
	pending repository.PendingUserRepository,
	referrals repository.ReferralRepository,
	payouts repository.PayoutRepository,
	codes repository.CodeRepository,
	activations repository.ActivationRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *identityUC {
	return &identityUC{
		users:       users,
		pending:     pending,
		referrals:   referrals,
		payouts:     payouts,
		codes:       codes,
		activations: activations,
		tm:          tm,
		log:         logger,
	}
}

func (u *identityUC) EnsureIdentity(ctx context.Context, tgID int64, username string, referredBy int64) (*model.User, error) {
	defer logging.TraceDuration(u.log, "IdentityUC.EnsureIdentity")()

	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if referredBy == tgID {
		return nil, domain.ErrSelfReferral
	}
	name := model.NormalizeUsername(username)

	var out *model.User
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if referredBy > 0 {
			// The referrer may not have talked to the bot yet.
			stub, err := model.NewUser(referredBy, "")
			if err != nil {
				return err
			}
			if _, err := u.users.Create(ctx, tx, stub); err != nil {
				return err
			}
		}

		existing, err := u.users.FindByID(ctx, tx, tgID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			nu, err := model.NewUser(tgID, name)
			if err != nil {
				return err
			}
			if referredBy > 0 {
				nu.ReferredBy = &referredBy
			}
			if _, err := u.users.Create(ctx, tx, nu); err != nil {
				return err
			}
			if referredBy > 0 {
				if err := u.referrals.Create(ctx, tx, referredBy, tgID); err != nil {
					return err
				}
			}
			out = nu
			return nil
		case err != nil:
			return err
		}

		changed := false
		if referredBy > 0 && existing.ReferredBy == nil {
			claimed, err := u.users.SetReferrerIfUnset(ctx, tx, tgID, referredBy)
			if err != nil {
				return err
			}
			if claimed {
				existing.ReferredBy = &referredBy
				if err := u.referrals.Create(ctx, tx, referredBy, tgID); err != nil {
					return err
				}
			}
			if existing.Username == "" && name != "" {
				existing.Username = name
				changed = true
			}
		} else if name != "" && existing.Username != name {
			existing.Username = name
			changed = true
		}
		if changed {
			if err := u.users.Update(ctx, tx, existing); err != nil {
				return err
			}
		}
		out = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (u *identityUC) MergePendingToIdentity(ctx context.Context, tgID int64, username string) error {
	defer logging.TraceDuration(u.log, "IdentityUC.MergePendingToIdentity")()

	if model.PendingKey(username) == "" {
		return nil
	}
	return u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.pending.Find(ctx, tx, username)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		usr, err := u.users.FindByID(ctx, tx, tgID)
		if err != nil {
			return err
		}
		usr.IsBlocked = p.IsBlocked
		usr.IsPartner = p.IsPartner
		usr.IsGift = p.IsGift
		// The staged row is authoritative: an unset discount clears any override.
		usr.CustomDiscountPct = p.CustomDiscountPct
		if err := u.users.Update(ctx, tx, usr); err != nil {
			return err
		}
		u.log.Info().Int64("tg_id", tgID).Str("username", p.Username).Msg("staged identity merged")
		return u.pending.Delete(ctx, tx, username)
	})
}

// percentFor resolves the commission rate: an explicit override wins,
// partners earn the partner rate and everyone else the client rate.
func percentFor(custom *float64, partner bool) float64 {
	switch {
	case custom != nil:
		return *custom
	case partner:
		return domain.PartnerReferralPercent
	default:
		return domain.ClientReferralPercent
	}
}

func (u *identityUC) ReferralPercent(ctx context.Context, tgID int64) (float64, error) {
	defer logging.TraceDuration(u.log, "IdentityUC.ReferralPercent")()
	return referralPercent(ctx, u.users, repository.NoTX, tgID)
}

// referralPercent is shared with the payment ledger, which calls it inside its own tx.
func referralPercent(ctx context.Context, users repository.UserRepository, tx repository.Tx, tgID int64) (float64, error) {
	usr, err := users.FindByID(ctx, tx, tgID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ClientReferralPercent, nil
	}
	if err != nil {
		return 0, err
	}
	return percentFor(usr.CustomDiscountPct, usr.IsPartner), nil
}

func (u *identityUC) PendingReferralPercent(ctx context.Context, username string) (float64, error) {
	defer logging.TraceDuration(u.log, "IdentityUC.PendingReferralPercent")()

	p, err := u.pending.Find(ctx, repository.NoTX, username)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ClientReferralPercent, nil
	}
	if err != nil {
		return 0, err
	}
	return percentFor(p.CustomDiscountPct, p.IsPartner), nil
}

func (u *identityUC) FullInfo(ctx context.Context, tgID int64, username string) (*model.ClientInfo, error) {
	defer logging.TraceDuration(u.log, "IdentityUC.FullInfo")()

	if tgID <= 0 && model.PendingKey(username) == "" {
		return nil, domain.ErrInvalidArgument
	}

	var info *model.ClientInfo
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if tgID <= 0 {
			p, err := u.pending.Find(ctx, tx, username)
			if errors.Is(err, domain.ErrNotFound) {
				p = &model.PendingIdentity{Username: model.PendingKey(username)}
			} else if err != nil {
				return err
			}
			info = identityInfo(model.Staged(p))
			info.Percent = percentFor(p.CustomDiscountPct, p.IsPartner)
			sub, err := u.assignedSubscription(ctx, tx, username)
			if err != nil {
				return err
			}
			info.Subscription = sub
			return nil
		}

		usr, err := u.users.FindByID(ctx, tx, tgID)
		if err != nil {
			return err
		}
		info = identityInfo(model.Registered(usr))
		info.Percent = percentFor(usr.CustomDiscountPct, usr.IsPartner)

		if info.Subscription, err = u.subscription(ctx, tx, usr); err != nil {
			return err
		}
		if info.ReferralCount, err = u.referrals.CountByReferrer(ctx, tx, tgID); err != nil {
			return err
		}
		pending, err := u.payouts.PendingTotal(ctx, tx, tgID)
		if err != nil {
			return err
		}
		info.PendingUSD = decimal.NewFromFloat(pending).Round(2).InexactFloat64()

		if usr.ReferredBy != nil {
			info.Referrer = strconv.FormatInt(*usr.ReferredBy, 10)
			ref, err := u.users.FindByID(ctx, tx, *usr.ReferredBy)
			switch {
			case err == nil:
				if ref.Username != "" {
					info.Referrer = "@" + ref.Username
				}
			case !errors.Is(err, domain.ErrNotFound):
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func identityInfo(id model.Identity) *model.ClientInfo {
	return &model.ClientInfo{
		TelegramID:        id.TelegramID(),
		Username:          id.Username(),
		Role:              id.Role(),
		IsBlocked:         id.IsBlocked(),
		CustomDiscountPct: id.CustomDiscountPct(),
		Registered:        id.IsRegistered(),
		Since:             id.Since(),
	}
}

// subscription prefers a live machine binding and falls back to a code
// that was only assigned to the username.
func (u *identityUC) subscription(ctx context.Context, tx repository.Tx, usr *model.User) (*model.SubscriptionInfo, error) {
	a, err := u.activations.LatestLiveByUser(ctx, tx, usr.TelegramID)
	switch {
	case err == nil:
		return &model.SubscriptionInfo{
			Code:        a.Code,
			Status:      model.SubscriptionActivated,
			ExpiresAt:   a.ExpiresAt,
			IsDeveloper: a.IsDeveloper,
		}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	if usr.Username == "" {
		return nil, nil
	}
	return u.assignedSubscription(ctx, tx, usr.Username)
}

func (u *identityUC) assignedSubscription(ctx context.Context, tx repository.Tx, username string) (*model.SubscriptionInfo, error) {
	c, err := u.codes.FindAssignedUnbound(ctx, tx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.SubscriptionInfo{
		Code:        c.Code,
		Status:      model.SubscriptionAssigned,
		IsDeveloper: c.IsDeveloper,
	}, nil
}

func (u *identityUC) StatusLabel(ctx context.Context, tgID int64) (string, error) {
	defer logging.TraceDuration(u.log, "IdentityUC.StatusLabel")()

	usr, err := u.users.FindByID(ctx, repository.NoTX, tgID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.RoleClient, nil
	}
	if err != nil {
		return "", err
	}
	return statusLabel(usr.IsBlocked, usr.IsPartner, usr.IsGift), nil
}

func statusLabel(blocked, partner, gift bool) string {
	switch {
	case blocked:
		return StatusBlocked
	case gift:
		return domain.RoleGift
	case partner:
		return domain.RolePartner
	default:
		return domain.RoleClient
	}
}

// updateUser loads tgID, applies mutate and writes it back. It reports false
// for an unknown user.
func (u *identityUC) updateUser(ctx context.Context, tgID int64, mutate func(*model.User)) (bool, error) {
	found := false
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		usr, err := u.users.FindByID(ctx, tx, tgID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		mutate(usr)
		return u.users.Update(ctx, tx, usr)
	})
	return found, err
}

// updatePending stages username if needed, then applies mutate.
func (u *identityUC) updatePending(ctx context.Context, username string, mutate func(*model.PendingIdentity)) error {
	if model.PendingKey(username) == "" {
		return domain.ErrInvalidArgument
	}
	return u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := u.pending.Ensure(ctx, tx, username); err != nil {
			return err
		}
		p, err := u.pending.Find(ctx, tx, username)
		if err != nil {
			return err
		}
		mutate(p)
		return u.pending.Save(ctx, tx, p)
	})
}

func validDiscount(pct *float64) bool {
	return pct == nil || (*pct >= 0 && *pct <= 100)
}

func (u *identityUC) SetRole(ctx context.Context, tgID int64, role string) (bool, error) {
	defer logging.TraceDuration(u.log, "IdentityUC.SetRole")()

	partner, gift, err := model.RoleFlags(role)
	if err != nil {
		return false, err
	}
	return u.updateUser(ctx, tgID, func(usr *model.User) {
		usr.IsPartner, usr.IsGift = partner, gift
	})
}

func (u *identityUC) SetBlocked(ctx context.Context, tgID int64, blocked bool) (bool, error) {
	defer logging.TraceDuration(u.log, "IdentityUC.SetBlocked")()
	return u.updateUser(ctx, tgID, func(usr *model.User) { usr.IsBlocked = blocked })
}

func (u *identityUC) SetCustomDiscount(ctx context.Context, tgID int64, pct *float64) (bool, error) {
	defer logging.TraceDuration(u.log, "IdentityUC.SetCustomDiscount")()
	if !validDiscount(pct) {
		return false, domain.ErrInvalidArgument
	}
	return u.updateUser(ctx, tgID, func(usr *model.User) { usr.CustomDiscountPct = pct })
}

func (u *identityUC) SetPendingRole(ctx context.Context, username, role string) error {
	defer logging.TraceDuration(u.log, "IdentityUC.SetPendingRole")()

	partner, gift, err := model.RoleFlags(role)
	if err != nil {
		return err
	}
	return u.updatePending(ctx, username, func(p *model.PendingIdentity) {
		p.IsPartner, p.IsGift = partner, gift
	})
}

func (u *identityUC) SetPendingBlocked(ctx context.Context, username string, blocked bool) error {
	defer logging.TraceDuration(u.log, "IdentityUC.SetPendingBlocked")()
	return u.updatePending(ctx, username, func(p *model.PendingIdentity) { p.IsBlocked = blocked })
}

func (u *identityUC) SetPendingDiscount(ctx context.Context, username string, pct *float64) error {
	defer logging.TraceDuration(u.log, "IdentityUC.SetPendingDiscount")()
	if !validDiscount(pct) {
		return domain.ErrInvalidArgument
	}
	return u.updatePending(ctx, username, func(p *model.PendingIdentity) { p.CustomDiscountPct = pct })
}

func (u *identityUC) ListReferrals(ctx context.Context, tgID int64) ([]*model.Referral, error) {
	defer logging.TraceDuration(u.log, "IdentityUC.ListReferrals")()
	return u.referrals.ListByReferrer(ctx, repository.NoTX, tgID)
}

func (u *identityUC) ListClients(ctx context.Context, sortBy string) ([]*model.ClientInfo, error) {
	defer logging.TraceDuration(u.log, "IdentityUC.ListClients")()

	var out []*model.ClientInfo
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		users, err := u.users.List(ctx, tx)
		if err != nil {
			return err
		}
		assignees, err := u.codes.ListAssignees(ctx, tx)
		if err != nil {
			return err
		}

		known := make(map[string]struct{}, len(users))
		out = make([]*model.ClientInfo, 0, len(users)+len(assignees))
		for _, usr := range users {
			if usr.Username != "" {
				known[strings.ToLower(usr.Username)] = struct{}{}
			}
			out = append(out, identityInfo(model.Registered(usr)))
		}
		for _, name := range assignees {
			key := model.PendingKey(name)
			if _, ok := known[key]; ok || key == "" {
				continue
			}
			known[key] = struct{}{}
			out = append(out, &model.ClientInfo{Username: model.NormalizeUsername(name), Role: domain.RoleClient})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortClients(out, sortBy)
	return out, nil
}

func clientName(c *model.ClientInfo) string {
	if c.Username != "" {
		return strings.ToLower(c.Username)
	}
	return strconv.FormatInt(c.TelegramID, 10)
}

func statusRank(c *model.ClientInfo) int {
	switch {
	case c.IsBlocked:
		return 0
	case c.Role == domain.RolePartner:
		return 1
	case c.Role == domain.RoleGift:
		return 2
	default:
		return 3
	}
}

func sortClients(cs []*model.ClientInfo, sortBy string) {
	switch sortBy {
	case SortByName:
		sort.SliceStable(cs, func(i, j int) bool { return clientName(cs[i]) < clientName(cs[j]) })
	case SortByStatus:
		sort.SliceStable(cs, func(i, j int) bool {
			ri, rj := statusRank(cs[i]), statusRank(cs[j])
			if ri != rj {
				return ri < rj
			}
			return clientName(cs[i]) < clientName(cs[j])
		})
	default:
		// Newest first; entries without a date go last.
		sort.SliceStable(cs, func(i, j int) bool {
			a, b := cs[i].Since, cs[j].Since
			if a.IsZero() != b.IsZero() {
				return !a.IsZero()
			}
			return a.After(b)
		})
	}
}
