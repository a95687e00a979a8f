package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/basket"
)

// FreezeBasket locks the basket for the payment round-trip and remembers it
// in the session so it can be recovered if payment fails.
func (p *Placement) FreezeBasket(ctx context.Context, sessionKey string, b *basket.Basket) error {
	if err := b.Freeze(); err != nil {
		return err
	}
	if err := p.baskets.UpdateStatus(ctx, b.ID, basket.StatusFrozen); err != nil {
		return errors.Wrap(err, "freeze basket")
	}

	sess, err := p.session(ctx, sessionKey)
	if err != nil {
		return err
	}
	sess.SubmittedBasketID = b.ID
	return p.sessions.Put(ctx, sessionKey, sess)
}

// RestoreFrozenBasket thaws the basket frozen for payment and reinstates it
// as the visitor's sole open basket. Any newer basket created while payment
// was in flight is merged into it. Returns the restored basket, or nil when
// the session holds no frozen basket.
func (p *Placement) RestoreFrozenBasket(ctx context.Context, sessionKey, currentBasketID string) (*basket.Basket, error) {
	sess, err := p.session(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	if sess.SubmittedBasketID == "" {
		return nil, nil
	}

	frozen, err := p.baskets.GetByID(ctx, sess.SubmittedBasketID)
	if err != nil {
		if errors.Is(err, basket.ErrNotFound) {
			// The session refers to a basket that no longer exists; nothing
			// to restore.
			p.lg.Warn("Frozen basket missing",
				zap.String("basket", sess.SubmittedBasketID),
			)
			return nil, nil
		}
		return nil, errors.Wrap(err, "load frozen basket")
	}

	if err := frozen.Thaw(); err != nil {
		return nil, err
	}
	if err := p.baskets.UpdateStatus(ctx, frozen.ID, basket.StatusOpen); err != nil {
		return nil, errors.Wrap(err, "thaw basket")
	}

	if currentBasketID != "" && currentBasketID != frozen.ID {
		current, err := p.baskets.GetByID(ctx, currentBasketID)
		if err != nil && !errors.Is(err, basket.ErrNotFound) {
			return nil, errors.Wrap(err, "load current basket")
		}
		if current != nil {
			if err := frozen.Merge(current); err != nil {
				return nil, errors.Wrap(err, "merge baskets")
			}
			if err := p.baskets.ReplaceLines(ctx, frozen.ID, frozen.Lines); err != nil {
				return nil, errors.Wrap(err, "persist merged lines")
			}
			if err := p.baskets.UpdateStatus(ctx, current.ID, basket.StatusMerged); err != nil {
				return nil, errors.Wrap(err, "retire merged basket")
			}
		}
	}

	return frozen, nil
}
