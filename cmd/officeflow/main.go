package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/officeflow/internal/clock"
	"github.com/smallbiznis/officeflow/internal/config"
	"github.com/smallbiznis/officeflow/internal/migration"
	"github.com/smallbiznis/officeflow/internal/observability"
	"github.com/smallbiznis/officeflow/internal/server"
	"github.com/smallbiznis/officeflow/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Schema first, so the server never sees a half-migrated database.
		migration.Module,
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
