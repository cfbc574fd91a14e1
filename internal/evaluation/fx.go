package evaluation

import (
	"github.com/testbay/testbay/internal/evaluation/domain"
	evalrepo "github.com/testbay/testbay/internal/evaluation/repository"
	"github.com/testbay/testbay/internal/evaluation/service"
	"github.com/testbay/testbay/pkg/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("evaluation.service",
	fx.Provide(evalrepo.Provide),
	fx.Provide(func(db *gorm.DB) repository.Repository[domain.Evaluation] {
		return repository.ProvideStore[domain.Evaluation](db)
	}),
	fx.Provide(service.New),
)
