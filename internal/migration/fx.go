package migration

import (
	accountdomain "github.com/testbay/testbay/internal/account/domain"
	"github.com/testbay/testbay/internal/config"
	evaluationdomain "github.com/testbay/testbay/internal/evaluation/domain"
	invitationdomain "github.com/testbay/testbay/internal/invitation/domain"
	projectdomain "github.com/testbay/testbay/internal/project/domain"
	userdomain "github.com/testbay/testbay/internal/user/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "sqlite" {
			// Versioned SQL targets postgres; embedded sqlite installs
			// build their schema from the models.
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

// AutoMigrate builds the schema directly from the domain models.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&accountdomain.Account{},
		&userdomain.User{},
		&projectdomain.Project{},
		&projectdomain.ProjectMember{},
		&evaluationdomain.Evaluation{},
		&evaluationdomain.EvaluationQuestion{},
		&evaluationdomain.EvaluationParticipant{},
		&evaluationdomain.EvaluationResponse{},
		&invitationdomain.Invitation{},
	)
}
