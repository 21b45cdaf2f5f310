package handler

import (
	"moviechat/internal/app/db"
	"moviechat/internal/app/hub"
	"moviechat/internal/configs"
)

// AppDeps bundles what the HTTP handlers of the development backend need.
type AppDeps struct {
	DB     *db.DB
	Chat   *hub.Hub
	Public *hub.Broadcaster
	Config *configs.ServerConfig
}
