package usecase

import (
	"context"
	"errors"

	"github.com/justinMonserrat/plop/internal/entity"
	"github.com/justinMonserrat/plop/internal/repository"

	"github.com/rs/zerolog"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrFollowSelf      = errors.New("cannot follow yourself")
)

type ProfileUsecase interface {
	Get(ctx context.Context, userId string) (entity.Profile, error)
	Following(ctx context.Context, userId string) ([]entity.Profile, error)
	Follow(ctx context.Context, followerId, followeeId string) error
	Unfollow(ctx context.Context, followerId, followeeId string) error
}

type profileUsecase struct {
	profileRepo repository.ProfileRepository
	followRepo  repository.FollowRepository
	notifUc     NotificationUsecase
	log         zerolog.Logger
}

func NewProfileUsecase(
	profileRepo repository.ProfileRepository,
	followRepo repository.FollowRepository,
	notifUc NotificationUsecase,
	log zerolog.Logger,
) ProfileUsecase {
	return &profileUsecase{
		profileRepo: profileRepo,
		followRepo:  followRepo,
		notifUc:     notifUc,
		log:         log.With().Str("component", "profiles").Logger(),
	}
}

func (p *profileUsecase) Get(ctx context.Context, userId string) (entity.Profile, error) {
	profile, err := p.profileRepo.Get(ctx, userId)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return entity.Profile{}, ErrProfileNotFound
		}
		return entity.Profile{}, err
	}

	profile.Password = ""
	return profile, nil
}

func (p *profileUsecase) Following(ctx context.Context, userId string) ([]entity.Profile, error) {
	follows, err := p.followRepo.Following(ctx, userId)
	if err != nil {
		return nil, err
	}
	if len(follows) == 0 {
		return []entity.Profile{}, nil
	}

	ids := make([]string, 0, len(follows))
	for _, follow := range follows {
		ids = append(ids, follow.FolloweeId)
	}

	profiles, err := p.profileRepo.Index(ctx, entity.ProfileIndexFilter{Ids: ids})
	if err != nil {
		return nil, err
	}

	for i := range profiles {
		profiles[i].Password = ""
	}

	return profiles, nil
}

func (p *profileUsecase) Follow(ctx context.Context, followerId, followeeId string) error {
	if followerId == followeeId {
		return ErrFollowSelf
	}

	follower, err := p.profileRepo.Get(ctx, followerId)
	if err != nil {
		return err
	}
	if _, err := p.profileRepo.Get(ctx, followeeId); err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return ErrProfileNotFound
		}
		return err
	}

	already, err := p.followRepo.IsFollowing(ctx, followerId, followeeId)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	if _, err := p.followRepo.Create(ctx, entity.Follow{
		FollowerId: followerId,
		FolloweeId: followeeId,
	}); err != nil {
		return err
	}

	payload, err := entity.EncodePayload(entity.FollowPayload{ActorName: follower.DisplayName()})
	if err != nil {
		p.log.Error().Err(err).Msg("encode follow payload")
		return nil
	}
	if _, _, err := p.notifUc.Notify(ctx, entity.Notification{
		RecipientId: followeeId,
		ActorId:     followerId,
		Type:        entity.NotificationFollow,
		Payload:     payload,
	}); err != nil {
		// The follow itself succeeded; the notification is best-effort.
		p.log.Error().Err(err).Str("followeeId", followeeId).Msg("follow notification failed")
	}

	return nil
}

func (p *profileUsecase) Unfollow(ctx context.Context, followerId, followeeId string) error {
	return p.followRepo.Delete(ctx, followerId, followeeId)
}
