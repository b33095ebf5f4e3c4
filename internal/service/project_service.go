package service

import (
	"context"

	"renopilot/internal/apperr"
	"renopilot/internal/logger"
	"renopilot/internal/model"
	"renopilot/internal/repository"
)

type projectService struct {
	projectRepo    repository.ProjectRepository
	contractorRepo repository.ContractorRepository
	logger         *logger.Logger
}

func NewProjectService(projectRepo repository.ProjectRepository, contractorRepo repository.ContractorRepository, logger *logger.Logger) ProjectService {
	return &projectService{
		projectRepo:    projectRepo,
		contractorRepo: contractorRepo,
		logger:         logger,
	}
}

func (s *projectService) CreateProject(ctx context.Context, userID, title, address, description string, budgetLimit float64, currency string) (*model.Project, error) {
	if title == "" {
		return nil, apperr.Validation("title", "project title is required")
	}
	if budgetLimit < 0 {
		return nil, apperr.Validation("budget_limit", "budget limit cannot be negative")
	}
	if currency == "" {
		currency = "EUR"
	}

	project := model.NewProject(userID, title, address, description, budgetLimit, currency)
	if err := s.projectRepo.Create(ctx, project); err != nil {
		s.logger.Error("Failed to create project:", err)
		return nil, err
	}
	s.logger.Info("Created project:", project.ID)
	return project, nil
}

func (s *projectService) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	return s.projectRepo.FindByID(ctx, projectID)
}

func (s *projectService) GetProjectsByUser(ctx context.Context, userID string) ([]*model.Project, error) {
	return s.projectRepo.FindByUserID(ctx, userID)
}

func (s *projectService) UpdateProject(ctx context.Context, project *model.Project) error {
	if project.Title == "" {
		return apperr.Validation("title", "project title is required")
	}
	return s.projectRepo.Update(ctx, project)
}

func (s *projectService) DeleteProject(ctx context.Context, projectID string) error {
	return s.projectRepo.Delete(ctx, projectID)
}

func (s *projectService) CreateContractor(ctx context.Context, name, email, trade, notes string) (*model.Contractor, error) {
	if name == "" {
		return nil, apperr.Validation("name", "contractor name is required")
	}
	if email == "" {
		return nil, apperr.Validation("email", "contractor email is required")
	}

	contractor := model.NewContractor(name, email, trade, notes)
	if err := s.contractorRepo.Create(ctx, contractor); err != nil {
		s.logger.Error("Failed to create contractor:", err)
		return nil, err
	}
	return contractor, nil
}

func (s *projectService) GetContractors(ctx context.Context) ([]*model.Contractor, error) {
	return s.contractorRepo.FindAll(ctx)
}
