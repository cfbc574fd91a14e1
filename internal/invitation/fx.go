package invitation

import (
	"github.com/testbay/testbay/internal/invitation/domain"
	invitationrepo "github.com/testbay/testbay/internal/invitation/repository"
	"github.com/testbay/testbay/internal/invitation/service"
	"github.com/testbay/testbay/pkg/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("invitation.service",
	fx.Provide(invitationrepo.Provide),
	fx.Provide(func(db *gorm.DB) repository.Repository[domain.Invitation] {
		return repository.ProvideStore[domain.Invitation](db)
	}),
	fx.Provide(service.New),
)
