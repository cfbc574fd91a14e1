package project

import (
	"github.com/testbay/testbay/internal/project/domain"
	projectrepo "github.com/testbay/testbay/internal/project/repository"
	"github.com/testbay/testbay/internal/project/service"
	"github.com/testbay/testbay/pkg/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("project.service",
	fx.Provide(projectrepo.Provide),
	fx.Provide(func(db *gorm.DB) repository.Repository[domain.Project] {
		return repository.ProvideStore[domain.Project](db)
	}),
	fx.Provide(service.New),
)
