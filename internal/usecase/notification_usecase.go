package usecase

import (
	"context"
	"time"

	"github.com/justinMonserrat/plop/infrastructure/rt"
	"github.com/justinMonserrat/plop/internal/entity"
	"github.com/justinMonserrat/plop/internal/repository"

	"github.com/rs/zerolog"
)

// NotificationWindow caps how many notifications the aggregator retains;
// older ones fall out and are not paged back in.
const NotificationWindow = 30

type NotificationUsecase interface {
	// Notify creates a notification and publishes its insert event.
	// Self-notifications and incomplete requests are silently dropped.
	Notify(ctx context.Context, notification entity.Notification) (entity.Notification, bool, error)

	// Recent returns the newest NotificationWindow notifications with the
	// unread count inside that window.
	Recent(ctx context.Context, userId string) ([]entity.Notification, int, error)

	// MarkRead stamps the given notifications read now and returns how
	// many were actually unread before the call.
	MarkRead(ctx context.Context, userId string, ids []string) (int64, error)
}

type notificationUsecase struct {
	notifRepo repository.NotificationRepository
	feed      rt.Feed
	log       zerolog.Logger
}

func NewNotificationUsecase(
	notifRepo repository.NotificationRepository,
	feed rt.Feed,
	log zerolog.Logger,
) NotificationUsecase {
	return &notificationUsecase{
		notifRepo: notifRepo,
		feed:      feed,
		log:       log.With().Str("component", "notifications").Logger(),
	}
}

func (n *notificationUsecase) Notify(ctx context.Context, notification entity.Notification) (entity.Notification, bool, error) {
	if notification.RecipientId == "" || notification.ActorId == "" {
		return entity.Notification{}, false, nil
	}
	if notification.RecipientId == notification.ActorId {
		return entity.Notification{}, false, nil
	}

	created, err := n.notifRepo.Insert(ctx, notification)
	if err != nil {
		return entity.Notification{}, false, err
	}

	n.publish(ctx, rt.ActionInsert, created, nil)
	return created, true, nil
}

func (n *notificationUsecase) Recent(ctx context.Context, userId string) ([]entity.Notification, int, error) {
	notifications, err := n.notifRepo.Recent(ctx, userId, NotificationWindow)
	if err != nil {
		return nil, 0, err
	}

	unread := 0
	for _, notification := range notifications {
		if !notification.IsRead() {
			unread++
		}
	}

	return notifications, unread, nil
}

func (n *notificationUsecase) MarkRead(ctx context.Context, userId string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	modified, err := n.notifRepo.MarkRead(ctx, userId, ids, time.Now())
	if err != nil {
		return 0, err
	}

	// Echo the new read state so every open session converges.
	for _, id := range ids {
		updated, err := n.notifRepo.Get(ctx, id)
		if err != nil {
			continue
		}
		if updated.RecipientId != userId {
			continue
		}
		n.publish(ctx, rt.ActionUpdate, updated, nil)
	}

	return modified, nil
}

func (n *notificationUsecase) publish(ctx context.Context, action rt.Action, notification entity.Notification, old *entity.Notification) {
	var oldRow any
	if old != nil {
		oldRow = *old
	}
	ev, err := rt.NewEvent(action, rt.TableNotifications, notification.RecipientId, notification, oldRow)
	if err != nil {
		n.log.Error().Err(err).Str("notificationId", notification.Id).Msg("encode notification event")
		return
	}
	if err := n.feed.Publish(ctx, ev); err != nil {
		n.log.Error().Err(err).Str("notificationId", notification.Id).Msg("publish notification event")
	}
}
