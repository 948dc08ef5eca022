package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bezpauzy/eva-bot/internal/models"
	"github.com/bezpauzy/eva-bot/internal/repository"
)

// CatalogLimit caps the number of videos offered in chat.
const CatalogLimit = 10

type VideoService struct {
	videos *repository.VideoRepository
	now    repository.Clock
	log    zerolog.Logger
}

func NewVideoService(videos *repository.VideoRepository, now repository.Clock, log zerolog.Logger) *VideoService {
	if now == nil {
		now = repository.SystemClock
	}
	return &VideoService{videos: videos, now: now, log: log.With().Str("component", "videos").Logger()}
}

// Catalog lists published doctor videos for a user with video access.
func (s *VideoService) Catalog(ctx context.Context, user *models.User) ([]models.Video, error) {
	if !user.HasVideoAccess() {
		return nil, ErrSubscriptionRequired
	}
	return s.videos.ListPublished(ctx, models.ContentDoctorsExplain, models.AccessPaid1, s.now(), CatalogLimit)
}

// Watch loads a single video for a user with video access and counts the view.
func (s *VideoService) Watch(ctx context.Context, user *models.User, id string) (*models.Video, error) {
	if !user.HasVideoAccess() {
		return nil, ErrSubscriptionRequired
	}
	video, err := s.videos.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, ErrVideoNotFound
	}
	if err := s.videos.IncrementViews(ctx, video.ID); err != nil {
		s.log.Warn().Err(err).Str("video_id", video.ID).Msg("increment views")
	}
	return video, nil
}

func (s *VideoService) List(ctx context.Context) ([]models.Video, error) {
	return s.videos.List(ctx)
}

func (s *VideoService) Get(ctx context.Context, id string) (*models.Video, error) {
	video, err := s.videos.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, ErrVideoNotFound
	}
	return video, nil
}

type VideoInput struct {
	Slug              string
	Title             string
	Description       string
	DoctorName        string
	DoctorSpecialty   string
	DoctorCredentials *string
	DurationSeconds   int
	ContentType       string
	AccessLevel       string
	Published         bool
}

func (s *VideoService) Create(ctx context.Context, in VideoInput) (*models.Video, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	video := &models.Video{}
	s.apply(video, in)
	if err := s.videos.Create(ctx, video); err != nil {
		return nil, err
	}
	return video, nil
}

func (s *VideoService) Update(ctx context.Context, id string, in VideoInput) (*models.Video, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	video, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.apply(video, in)
	ok, err := s.videos.Update(ctx, video)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVideoNotFound
	}
	return video, nil
}

func (s *VideoService) Delete(ctx context.Context, id string) error {
	ok, err := s.videos.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrVideoNotFound
	}
	return nil
}

// apply copies in onto video and stamps the first publication time.
func (s *VideoService) apply(video *models.Video, in VideoInput) {
	video.Slug = strings.TrimSpace(in.Slug)
	video.Title = strings.TrimSpace(in.Title)
	video.Description = in.Description
	video.DoctorName = in.DoctorName
	video.DoctorSpecialty = in.DoctorSpecialty
	video.DoctorCredentials = in.DoctorCredentials
	video.DurationSeconds = in.DurationSeconds
	video.ContentType = in.ContentType
	if video.ContentType == "" {
		video.ContentType = models.ContentDoctorsExplain
	}
	video.AccessLevel = in.AccessLevel
	if video.AccessLevel == "" {
		video.AccessLevel = models.AccessPaid1
	}
	video.Published = in.Published
	if in.Published && video.PublishedAt == nil {
		at := s.now()
		video.PublishedAt = &at
	}
}

func (in VideoInput) validate() error {
	if strings.TrimSpace(in.Slug) == "" || strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("slug and title are required")
	}
	if in.DurationSeconds < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	return nil
}
