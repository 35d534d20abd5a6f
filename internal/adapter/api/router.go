package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/chatvault/internal/adapter/api/handler"
	"github.com/user/chatvault/internal/adapter/api/middleware"
)

// NewRouter wires up the public read surface and the key-guarded admin
// endpoints.
func NewRouter(logs *handler.LogsHandler, admin *handler.AdminHandler, adminKey string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /list", logs.ListAvailable)
	mux.HandleFunc("GET /users-exist", logs.UsersExist)
	mux.HandleFunc("GET /name-history/{userId}", logs.NameHistory)

	mux.HandleFunc("GET /{channelIdType}/{channel}", logs.GetChannelLogs)
	mux.HandleFunc("GET /{channelIdType}/{channel}/random", logs.RandomChannelLine)
	mux.HandleFunc("GET /{channelIdType}/{channel}/stats", logs.ChannelStats)
	mux.HandleFunc("GET /{channelIdType}/{channel}/streams", logs.KnownStreams)
	mux.HandleFunc("GET /{channelIdType}/{channel}/{year}/{month}/{day}", logs.GetChannelLogsByDate)

	mux.HandleFunc("GET /{channelIdType}/{channel}/{userIdType}/{user}", logs.GetUserLogs)
	mux.HandleFunc("GET /{channelIdType}/{channel}/{userIdType}/{user}/random", logs.RandomUserLine)
	mux.HandleFunc("GET /{channelIdType}/{channel}/{userIdType}/{user}/search", logs.SearchUserLogs)
	mux.HandleFunc("GET /{channelIdType}/{channel}/{userIdType}/{user}/stats", logs.UserStats)
	mux.HandleFunc("GET /{channelIdType}/{channel}/{userIdType}/{user}/{year}/{month}", logs.GetUserLogsByDate)

	auth := middleware.AdminAuth(adminKey, logger)
	mux.Handle("POST /admin/channels", auth(http.HandlerFunc(admin.JoinChannels)))
	mux.Handle("DELETE /admin/channels", auth(http.HandlerFunc(admin.PartChannels)))

	return middleware.Logging(logger)(mux)
}
