package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/testbay/testbay/internal/authorization"
	"github.com/testbay/testbay/internal/clock"
	"github.com/testbay/testbay/internal/config"
	"github.com/testbay/testbay/internal/evaluation"
	"github.com/testbay/testbay/internal/identity"
	"github.com/testbay/testbay/internal/invitation"
	"github.com/testbay/testbay/internal/migration"
	"github.com/testbay/testbay/internal/observability"
	"github.com/testbay/testbay/internal/project"
	"github.com/testbay/testbay/internal/server"
	"github.com/testbay/testbay/internal/user"
	"github.com/testbay/testbay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		authorization.Module,
		user.Module,
		identity.Module,
		project.Module,
		evaluation.Module,
		invitation.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
