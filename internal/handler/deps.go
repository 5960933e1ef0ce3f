package handler

import (
	"dmchat/internal/app/chat"
	"dmchat/internal/app/message"
	"dmchat/internal/app/storage"
	"dmchat/internal/app/user"
	"dmchat/internal/configs"
)

// AppDeps bundles everything the HTTP layer needs.
type AppDeps struct {
	Config *configs.AppConfig

	Users    user.Store
	Messages message.Store

	Presence   *chat.Presence
	Sessions   *chat.Sessions
	Dispatcher *chat.Dispatcher

	// StorageService is nil when S3 is not configured.
	StorageService storage.StorageService
}
