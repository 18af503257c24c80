package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/parley/internal/core"
	"github.com/markdave123-py/parley/internal/models"
)

type AgentService struct {
	db core.AgentStore
}

func NewAgentService(db core.AgentStore) *AgentService {
	return &AgentService{db: db}
}

// AgentInput is the admin create/update body. Nil fields are left unchanged on update.
type AgentInput struct {
	Title            *string   `json:"title"`
	ShortDescription *string   `json:"short_description"`
	Instructions     *string   `json:"instructions"`
	Difficulty       *string   `json:"difficulty"`
	Language         *string   `json:"language"`
	Tags             *[]string `json:"tags"`
	ElevenAgentID    *string   `json:"eleven_agent_id"`
	IsActive         *bool     `json:"is_active"`
	DisplayOrder     *int      `json:"display_order"`
}

func (in AgentInput) apply(a *models.Agent) {
	if in.Title != nil {
		a.Title = strings.TrimSpace(*in.Title)
	}
	if in.ShortDescription != nil {
		a.ShortDescription = *in.ShortDescription
	}
	if in.Instructions != nil {
		a.Instructions = *in.Instructions
	}
	if in.Difficulty != nil {
		a.Difficulty = *in.Difficulty
	}
	if in.Language != nil {
		a.Language = *in.Language
	}
	if in.Tags != nil {
		a.Tags = *in.Tags
	}
	if in.ElevenAgentID != nil {
		a.ElevenAgentID = strings.TrimSpace(*in.ElevenAgentID)
	}
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}
	if in.DisplayOrder != nil {
		a.DisplayOrder = *in.DisplayOrder
	}
}

func validateAgent(a *models.Agent) error {
	switch {
	case a.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	case a.ElevenAgentID == "":
		return fmt.Errorf("%w: eleven_agent_id is required", ErrInvalidInput)
	}
	return nil
}

// ListActive is the catalog shown to users.
func (s *AgentService) ListActive(ctx context.Context) ([]models.Agent, error) {
	return s.db.ListAgents(ctx, true)
}

func (s *AgentService) ListAll(ctx context.Context) ([]models.Agent, error) {
	return s.db.ListAgents(ctx, false)
}

func (s *AgentService) Get(ctx context.Context, id string) (*models.Agent, error) {
	a, err := s.db.GetAgent(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrAgentNotFound
	}
	return a, err
}

func (s *AgentService) Create(ctx context.Context, in AgentInput) (*models.Agent, error) {
	now := time.Now().UTC()
	a := &models.Agent{ID: uuid.NewString(), IsActive: true, Tags: []string{}, CreatedAt: now, UpdatedAt: now}
	in.apply(a)
	if err := validateAgent(a); err != nil {
		return nil, err
	}
	if err := s.db.CreateAgent(ctx, a); err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return a, nil
}

func (s *AgentService) Update(ctx context.Context, id string, in AgentInput) (*models.Agent, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(a)
	if err := validateAgent(a); err != nil {
		return nil, err
	}
	if err := s.db.UpdateAgent(ctx, a); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("update agent: %w", err)
	}
	return a, nil
}

func (s *AgentService) SetThumbnail(ctx context.Context, id, path string) (*models.Agent, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a.ThumbnailPath = &path
	if err := s.db.UpdateAgent(ctx, a); err != nil {
		return nil, fmt.Errorf("update agent thumbnail: %w", err)
	}
	return a, nil
}

// Delete removes the agent and, through the store, its sessions.
func (s *AgentService) Delete(ctx context.Context, id string) error {
	err := s.db.DeleteAgent(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return ErrAgentNotFound
	}
	return err
}
