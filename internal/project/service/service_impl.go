package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/testbay/testbay/internal/authorization"
	"github.com/testbay/testbay/internal/project/domain"
	userdomain "github.com/testbay/testbay/internal/user/domain"
	"github.com/testbay/testbay/pkg/db/option"
	"github.com/testbay/testbay/pkg/db/pagination"
	"github.com/testbay/testbay/pkg/repository"
	"github.com/testbay/testbay/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Authz authorization.Service
	Store repository.Repository[domain.Project]
	Repo  domain.Repository
	Users userdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	authz authorization.Service
	store repository.Repository[domain.Project]
	repo  domain.Repository
	users userdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("project.service"),
		genID: p.GenID,
		authz: p.Authz,
		store: p.Store,
		repo:  p.Repo,
		users: p.Users,
	}
}

// notDeleted excludes soft-deleted rows from reads.
var notDeleted = option.WithWhere("deleted_at IS NULL")

func (s *Service) List(ctx context.Context, page pagination.Pagination) (*domain.ListResponse, error) {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectProject, authorization.ActionProjectView); err != nil {
		return nil, err
	}

	var (
		items []*domain.Project
		total int64
	)
	if principal.Role == tenantctx.RoleMember {
		// Restricted members only see projects they are attached to.
		items, total, err = s.repo.ListVisibleToMember(ctx, s.db, principal.AccountID, principal.UserID, page)
	} else {
		items, total, err = s.store.List(ctx, principal.AccountID, page, notDeleted)
	}
	if err != nil {
		return nil, err
	}

	return s.toListResponse(items, page, total), nil
}

func (s *Service) Mine(ctx context.Context, page pagination.Pagination) (*domain.ListResponse, error) {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectProject, authorization.ActionProjectView); err != nil {
		return nil, err
	}

	items, total, err := s.repo.ListOwned(ctx, s.db, principal.AccountID, principal.UserID, page)
	if err != nil {
		return nil, err
	}
	return s.toListResponse(items, page, total), nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectProject, authorization.ActionProjectView); err != nil {
		return nil, err
	}

	project, err := s.fetch(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	if principal.Role == tenantctx.RoleMember {
		visible, err := s.repo.HasMember(ctx, s.db, project.ID, principal.UserID)
		if err != nil {
			return nil, err
		}
		if !visible && project.OwnerID != principal.UserID {
			return nil, domain.ErrNotFound
		}
	}

	resp := toResponse(project)
	return &resp, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectProject, authorization.ActionProjectCreate); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	status := domain.StatusDraft
	if req.Status != nil {
		raw := strings.ToLower(strings.TrimSpace(*req.Status))
		if !domain.ValidStatus(raw) {
			return nil, domain.ErrInvalidStatus
		}
		status = domain.ProjectStatus(raw)
	}

	var descriptionPtr *string
	if req.Description != nil {
		if description := strings.TrimSpace(*req.Description); description != "" {
			descriptionPtr = &description
		}
	}

	now := time.Now().UTC()
	project := &domain.Project{
		ID:          s.genID.Generate(),
		AccountID:   principal.AccountID,
		OwnerID:     principal.UserID,
		Name:        name,
		Description: descriptionPtr,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, project); err != nil {
		return nil, err
	}

	resp := toResponse(project)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateRequest) (*domain.Response, error) {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectProject, authorization.ActionProjectUpdate); err != nil {
		return nil, err
	}

	project, err := s.fetch(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		project.Name = name
	}
	if req.Description != nil {
		if description := strings.TrimSpace(*req.Description); description == "" {
			project.Description = nil
		} else {
			project.Description = &description
		}
	}
	if req.Status != nil {
		raw := strings.ToLower(strings.TrimSpace(*req.Status))
		if !domain.ValidStatus(raw) {
			return nil, domain.ErrInvalidStatus
		}
		project.Status = domain.ProjectStatus(raw)
	}

	// A map keeps cleared nullable columns in the UPDATE.
	project.UpdatedAt = time.Now().UTC()
	err = s.store.Update(ctx, principal.AccountID, project.ID, map[string]any{
		"name":        project.Name,
		"description": project.Description,
		"status":      project.Status,
		"updated_at":  project.UpdatedAt,
	})
	if err != nil {
		return nil, err
	}

	resp := toResponse(project)
	return &resp, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectProject, authorization.ActionProjectDelete); err != nil {
		return err
	}

	project, err := s.fetch(ctx, principal, id)
	if err != nil {
		return err
	}

	return s.store.SoftDelete(ctx, principal.AccountID, project.ID)
}

func (s *Service) AddMember(ctx context.Context, projectID, userID string) error {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	// Membership management is owner-only, independent of the entity
	// permission table.
	if principal.Role != tenantctx.RoleOwner {
		return authorization.ErrForbidden
	}

	project, err := s.fetch(ctx, principal, projectID)
	if err != nil {
		return err
	}

	targetID, err := parseID(userID)
	if err != nil {
		return domain.ErrInvalidUser
	}
	target, err := s.users.FindByID(ctx, s.db, principal.AccountID, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return domain.ErrInvalidUser
	}

	exists, err := s.repo.HasMember(ctx, s.db, project.ID, target.ID)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrMemberExists
	}

	return s.repo.AddMember(ctx, s.db, &domain.ProjectMember{
		ProjectID: project.ID,
		UserID:    target.ID,
		AccountID: principal.AccountID,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *Service) RemoveMember(ctx context.Context, projectID, userID string) error {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	if principal.Role != tenantctx.RoleOwner {
		return authorization.ErrForbidden
	}

	project, err := s.fetch(ctx, principal, projectID)
	if err != nil {
		return err
	}

	targetID, err := parseID(userID)
	if err != nil {
		return domain.ErrInvalidUser
	}

	exists, err := s.repo.HasMember(ctx, s.db, project.ID, targetID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrMemberNotFound
	}

	return s.repo.RemoveMember(ctx, s.db, project.ID, targetID)
}

// fetch resolves a project by id inside the caller's tenant, excluding
// soft-deleted rows.
func (s *Service) fetch(ctx context.Context, principal tenantctx.Principal, id string) (*domain.Project, error) {
	projectID, err := parseID(id)
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	project, err := s.store.Get(ctx, principal.AccountID, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil || project.DeletedAt != nil {
		return nil, domain.ErrNotFound
	}
	return project, nil
}

func (s *Service) toListResponse(items []*domain.Project, page pagination.Pagination, total int64) *domain.ListResponse {
	resp := make([]domain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, toResponse(item))
	}
	return &domain.ListResponse{
		Items:    resp,
		PageInfo: pagination.BuildPageInfo(page.Normalize(), total),
	}
}

func toResponse(p *domain.Project) domain.Response {
	return domain.Response{
		ID:          p.ID.String(),
		AccountID:   p.AccountID.String(),
		OwnerID:     p.OwnerID.String(),
		Name:        p.Name,
		Description: p.Description,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
