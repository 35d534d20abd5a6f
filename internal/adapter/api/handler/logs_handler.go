package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/user/chatvault/internal/codec"
	"github.com/user/chatvault/internal/domain"
	"github.com/user/chatvault/internal/logstream"
	"github.com/user/chatvault/internal/usecase"
)

const knownStreamsWindow = 90 * 24 * time.Hour

// LogsHandler serves the archive's read endpoints.
type LogsHandler struct {
	logs      *usecase.LogsUseCase
	directory *usecase.DirectoryUseCase
	streams   domain.StreamRepository
	logger    *slog.Logger
}

// NewLogsHandler creates a new LogsHandler.
func NewLogsHandler(logs *usecase.LogsUseCase, directory *usecase.DirectoryUseCase, streams domain.StreamRepository, logger *slog.Logger) *LogsHandler {
	return &LogsHandler{
		logs:      logs,
		directory: directory,
		streams:   streams,
		logger:    logger.With("component", "logs_handler"),
	}
}

// GetChannelLogs serves a channel's logs for an explicit from/to range, or
// redirects to the latest available day when no range is given.
func (h *LogsHandler) GetChannelLogs(w http.ResponseWriter, r *http.Request) {
	channelID, err := h.resolveChannelID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	timeRange, ok, err := parseRange(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if !ok {
		dates, err := h.logs.AvailableChannelLogs(r.Context(), channelID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.redirectLatest(w, r, fmt.Sprintf("/%s/%s/%s",
			r.PathValue("channelIdType"), r.PathValue("channel"), dates[0]))
		return
	}

	params := parseLogsParams(r)
	stream, err := h.logs.ReadChannel(r.Context(), channelID, timeRange, params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondLogs(w, r, stream)
}

// GetChannelLogsByDate serves one day of a channel's logs.
func (h *LogsHandler) GetChannelLogsByDate(w http.ResponseWriter, r *http.Request) {
	channelID, err := h.resolveChannelID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	timeRange, err := dayRange(r.PathValue("year"), r.PathValue("month"), r.PathValue("day"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	params := parseLogsParams(r)
	stream, err := h.logs.ReadChannel(r.Context(), channelID, timeRange, params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondLogs(w, r, stream)
}

// GetUserLogs serves a chatter's logs for an explicit range, or redirects
// to the latest available month.
func (h *LogsHandler) GetUserLogs(w http.ResponseWriter, r *http.Request) {
	channelID, userID, err := h.resolveScope(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	timeRange, ok, err := parseRange(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if !ok {
		dates, err := h.logs.AvailableUserLogs(r.Context(), channelID, userID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.redirectLatest(w, r, fmt.Sprintf("/%s/%s/%s/%s/%s",
			r.PathValue("channelIdType"), r.PathValue("channel"),
			r.PathValue("userIdType"), r.PathValue("user"), dates[0]))
		return
	}

	params := parseLogsParams(r)
	stream, err := h.logs.ReadUser(r.Context(), channelID, userID, timeRange, params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondLogs(w, r, stream)
}

// GetUserLogsByDate serves one month of a chatter's logs.
func (h *LogsHandler) GetUserLogsByDate(w http.ResponseWriter, r *http.Request) {
	channelID, userID, err := h.resolveScope(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	timeRange, err := monthRange(r.PathValue("year"), r.PathValue("month"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	params := parseLogsParams(r)
	stream, err := h.logs.ReadUser(r.Context(), channelID, userID, timeRange, params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondLogs(w, r, stream)
}

// RandomChannelLine serves one random stored line of a channel.
func (h *LogsHandler) RandomChannelLine(w http.ResponseWriter, r *http.Request) {
	channelID, err := h.resolveChannelID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	msg, err := h.logs.RandomChannelLine(r.Context(), channelID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondMessages(w, r, []domain.Message{*msg})
}

// RandomUserLine serves one random stored line of a chatter.
func (h *LogsHandler) RandomUserLine(w http.ResponseWriter, r *http.Request) {
	channelID, userID, err := h.resolveScope(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	msg, err := h.logs.RandomUserLine(r.Context(), channelID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondMessages(w, r, []domain.Message{*msg})
}

// SearchUserLogs serves a substring search over a chatter's stored lines.
func (h *LogsHandler) SearchUserLogs(w http.ResponseWriter, r *http.Request) {
	channelID, userID, err := h.resolveScope(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	stream, err := h.logs.SearchUser(r.Context(), channelID, userID, r.URL.Query().Get("q"), parseLogsParams(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondLogs(w, r, stream)
}

// ChannelStats serves a channel's message count and top chatters.
func (h *LogsHandler) ChannelStats(w http.ResponseWriter, r *http.Request) {
	channelID, err := h.resolveChannelID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	timeRange, ok, err := parseRange(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var rangePtr *domain.TimeRange
	if ok {
		rangePtr = &timeRange
	}

	stats, err := h.logs.ChannelStats(r.Context(), channelID, rangePtr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, stats)
}

// UserStats serves one chatter's message count.
func (h *LogsHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	channelID, userID, err := h.resolveScope(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	timeRange, ok, err := parseRange(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var rangePtr *domain.TimeRange
	if ok {
		rangePtr = &timeRange
	}

	stats, err := h.logs.UserStats(r.Context(), channelID, userID, rangePtr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, stats)
}

// ListAvailable serves the dates for which the archive holds logs of a
// chatter in a channel.
func (h *LogsHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	channelID, err := h.resolveParam(r, query.Get("channel"), query.Get("channelid"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	userID, err := h.resolveParam(r, query.Get("user"), query.Get("userid"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	dates, err := h.logs.AvailableUserLogs(r.Context(), channelID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{"availableLogs": dates})
}

// UsersExist reports for each given user id whether the channel holds any
// of their messages.
func (h *LogsHandler) UsersExist(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	channelID, err := h.resolveParam(r, query.Get("channel"), query.Get("channelid"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	userIDs := query["userid"]
	if len(userIDs) == 0 {
		h.writeError(w, fmt.Errorf("%w: missing userid parameter", domain.ErrInvalidParam))
		return
	}

	result, err := h.logs.UsersWithLogs(r.Context(), channelID, userIDs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{"users": result})
}

// KnownStreams serves the broadcasts recorded for a channel.
func (h *LogsHandler) KnownStreams(w http.ResponseWriter, r *http.Request) {
	channelID, err := h.resolveChannelID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	since := time.Now().UTC().Add(-knownStreamsWindow)
	streams, err := h.streams.KnownStreams(r.Context(), channelID, since, 200)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{"channelId": channelID, "streams": streams})
}

// NameHistory serves the login names a user id has been seen under.
func (h *LogsHandler) NameHistory(w http.ResponseWriter, r *http.Request) {
	names, err := h.logs.UserLoginHistory(r.Context(), r.PathValue("userId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, names)
}

func (h *LogsHandler) resolveChannelID(r *http.Request) (string, error) {
	return h.resolveTyped(r, r.PathValue("channelIdType"), "channel", "channelid", r.PathValue("channel"))
}

func (h *LogsHandler) resolveScope(r *http.Request) (string, string, error) {
	channelID, err := h.resolveChannelID(r)
	if err != nil {
		return "", "", err
	}
	userID, err := h.resolveTyped(r, r.PathValue("userIdType"), "user", "userid", r.PathValue("user"))
	if err != nil {
		return "", "", err
	}
	return channelID, userID, nil
}

func (h *LogsHandler) resolveTyped(r *http.Request, idType, nameKind, idKind, value string) (string, error) {
	switch idType {
	case nameKind:
		return h.directory.ResolveUserID(r.Context(), value)
	case idKind:
		return value, nil
	default:
		return "", fmt.Errorf("%w: unknown id type %q", domain.ErrInvalidParam, idType)
	}
}

func (h *LogsHandler) resolveParam(r *http.Request, name, id string) (string, error) {
	switch {
	case id != "":
		return id, nil
	case name != "":
		return h.directory.ResolveUserID(r.Context(), name)
	default:
		return "", fmt.Errorf("%w: missing name or id parameter", domain.ErrInvalidParam)
	}
}

func (h *LogsHandler) redirectLatest(w http.ResponseWriter, r *http.Request, location string) {
	if raw := r.URL.RawQuery; raw != "" {
		location += "?" + raw
	}
	http.Redirect(w, r, location, http.StatusFound)
}

func (h *LogsHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "No logs found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidParam):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("request failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (h *LogsHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

type responseType int

const (
	responseText responseType = iota
	responseJSON
	responseNDJSON
	responseRaw
)

func parseResponseType(r *http.Request) responseType {
	query := r.URL.Query()
	switch {
	case query.Has("raw"):
		return responseRaw
	case query.Has("json"):
		return responseJSON
	case query.Has("ndjson"):
		return responseNDJSON
	default:
		return responseText
	}
}

func parseLogsParams(r *http.Request) domain.LogsParams {
	query := r.URL.Query()
	params := domain.LogsParams{Reverse: query.Has("reverse")}

	if limit, err := strconv.ParseUint(query.Get("limit"), 10, 64); err == nil {
		params.Limit = limit
	}
	if offset, err := strconv.ParseUint(query.Get("offset"), 10, 64); err == nil {
		params.Offset = offset
	}
	return params
}

// parseRange reads an optional from/to query pair. Both must be given
// together; ok is false when neither is present.
func parseRange(r *http.Request) (domain.TimeRange, bool, error) {
	query := r.URL.Query()
	fromRaw, toRaw := query.Get("from"), query.Get("to")
	if fromRaw == "" && toRaw == "" {
		return domain.TimeRange{}, false, nil
	}

	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		return domain.TimeRange{}, false, fmt.Errorf("%w: invalid from timestamp", domain.ErrInvalidParam)
	}
	to, err := time.Parse(time.RFC3339, toRaw)
	if err != nil {
		return domain.TimeRange{}, false, fmt.Errorf("%w: invalid to timestamp", domain.ErrInvalidParam)
	}

	timeRange := domain.TimeRange{From: from.UTC(), To: to.UTC()}
	if err := timeRange.Validate(); err != nil {
		return domain.TimeRange{}, false, err
	}
	return timeRange, true, nil
}

func dayRange(yearRaw, monthRaw, dayRaw string) (domain.TimeRange, error) {
	year, errY := strconv.Atoi(yearRaw)
	month, errM := strconv.Atoi(monthRaw)
	day, errD := strconv.Atoi(dayRaw)
	if errY != nil || errM != nil || errD != nil {
		return domain.TimeRange{}, fmt.Errorf("%w: invalid date", domain.ErrInvalidParam)
	}

	from := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if from.Year() != year || int(from.Month()) != month || from.Day() != day {
		return domain.TimeRange{}, fmt.Errorf("%w: invalid date", domain.ErrInvalidParam)
	}
	return domain.TimeRange{From: from, To: from.AddDate(0, 0, 1)}, nil
}

func monthRange(yearRaw, monthRaw string) (domain.TimeRange, error) {
	year, errY := strconv.Atoi(yearRaw)
	month, errM := strconv.Atoi(monthRaw)
	if errY != nil || errM != nil || month < 1 || month > 12 {
		return domain.TimeRange{}, fmt.Errorf("%w: invalid date", domain.ErrInvalidParam)
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return domain.TimeRange{From: from, To: from.AddDate(0, 1, 0)}, nil
}

type jsonMessage struct {
	Text        string    `json:"text"`
	DisplayName string    `json:"displayName"`
	Timestamp   time.Time `json:"timestamp"`
	ID          string    `json:"id,omitempty"`
	Channel     string    `json:"channel"`
	Username    string    `json:"username"`
	UserID      string    `json:"userId"`
	Raw         string    `json:"raw"`
}

func toJSONMessage(msg *domain.Message) jsonMessage {
	id := ""
	if msg.ID != uuid.Nil {
		id = msg.ID.String()
	}
	return jsonMessage{
		Text:        msg.Text,
		DisplayName: msg.DisplayName,
		Timestamp:   time.UnixMilli(msg.Timestamp).UTC(),
		ID:          id,
		Channel:     msg.ChannelLogin,
		Username:    msg.UserLogin,
		UserID:      msg.UserID,
		Raw:         codec.RawLine(msg),
	}
}

// respondLogs renders a stream lazily in the requested format. Rows are
// written as they are produced so large responses never materialize fully
// in memory, except for the json format which is a single document.
func (h *LogsHandler) respondLogs(w http.ResponseWriter, r *http.Request, stream domain.LogStream) {
	defer stream.Close()

	resType := parseResponseType(r)

	if resType == responseJSON {
		h.respondJSONDocument(w, r, stream)
		return
	}

	switch resType {
	case responseNDJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}

	encoder := json.NewEncoder(w)
	wrote := false
	for {
		msg, err := stream.Next(r.Context())
		if err == io.EOF {
			break
		}
		if err != nil {
			if !wrote {
				h.writeError(w, err)
			} else {
				h.logger.Error("stream failed mid-response", "error", err)
			}
			return
		}

		wrote = true
		switch resType {
		case responseRaw:
			fmt.Fprintln(w, codec.RawLine(msg))
		case responseNDJSON:
			if err := encoder.Encode(toJSONMessage(msg)); err != nil {
				h.logger.Error("failed to encode message", "error", err)
				return
			}
		default:
			ts := time.UnixMilli(msg.Timestamp).UTC().Format("2006-01-02 15:04:05")
			fmt.Fprintf(w, "[%s] #%s %s: %s\n", ts, msg.ChannelLogin, msg.UserLogin, msg.Text)
		}
	}

	if !wrote {
		h.writeError(w, domain.ErrNotFound)
	}
}

func (h *LogsHandler) respondJSONDocument(w http.ResponseWriter, r *http.Request, stream domain.LogStream) {
	var messages []jsonMessage
	for {
		msg, err := stream.Next(r.Context())
		if err == io.EOF {
			break
		}
		if err != nil {
			h.writeError(w, err)
			return
		}
		messages = append(messages, toJSONMessage(msg))
	}

	if len(messages) == 0 {
		h.writeError(w, domain.ErrNotFound)
		return
	}
	h.writeJSON(w, map[string]any{"messages": messages})
}

func (h *LogsHandler) respondMessages(w http.ResponseWriter, r *http.Request, messages []domain.Message) {
	h.respondLogs(w, r, logstream.FromMessages(messages))
}
