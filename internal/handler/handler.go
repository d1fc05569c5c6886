package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/GoArmGo/PinAlbum/internal/domain"
	"github.com/GoArmGo/PinAlbum/internal/mainloop"
	"github.com/GoArmGo/PinAlbum/internal/preferences"
	"github.com/GoArmGo/PinAlbum/internal/usecase"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Executor выполняет функцию на главном цикле и ждет результата
type Executor interface {
	Do(ctx context.Context, fn func() error) error
}

// AlbumHandler — обработчик HTTP-запросов экранов карты и альбома.
// Все обращения к сервису альбомов идут через главный цикл.
type AlbumHandler struct {
	service  *usecase.AlbumService
	loop     Executor
	prefs    preferences.Store
	upgrader websocket.Upgrader
	logger   *slog.Logger

	// изменяются только на главном цикле
	streams map[uuid.UUID]*AlbumStream
	pins    *AlbumStream
}

// NewAlbumHandler создаёт новый экземпляр AlbumHandler.
func NewAlbumHandler(service *usecase.AlbumService, loop Executor, prefs preferences.Store, logger *slog.Logger) *AlbumHandler {
	return &AlbumHandler{
		service: service,
		loop:    loop,
		prefs:   prefs,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		streams: make(map[uuid.UUID]*AlbumStream),
	}
}

type createPinRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type photoResponse struct {
	ID       uuid.UUID `json:"id"`
	URLPath  string    `json:"url_path"`
	HasImage bool      `json:"has_image"`
}

type albumResponse struct {
	PinID         uuid.UUID       `json:"pin_id"`
	State         string          `json:"state"`
	ActionEnabled bool            `json:"action_enabled"`
	Empty         bool            `json:"empty"`
	Alerts        []Alert         `json:"alerts"`
	Photos        []photoResponse `json:"photos"`
}

// respondWithJSON — отправляет JSON-ответ клиенту.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}, logger *slog.Logger) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		logger.Error("failed to marshal JSON response", "error", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err = w.Write(response); err != nil {
		logger.Error("failed to write HTTP response", "error", err)
	}
}

// respondWithError — отправляет JSON-ответ с ошибкой.
func respondWithError(w http.ResponseWriter, code int, message string, logger *slog.Logger) {
	respondWithJSON(w, code, map[string]string{"error": message}, logger)
}

// respondWithDomainError подбирает HTTP-статус по ошибке.
func (h *AlbumHandler) respondWithDomainError(w http.ResponseWriter, err error) {
	var storeErr *domain.LocalStoreError
	switch {
	case errors.Is(err, domain.ErrPinNotFound), errors.Is(err, domain.ErrPhotoNotFound):
		respondWithError(w, http.StatusNotFound, err.Error(), h.logger)
	case errors.Is(err, domain.ErrSessionClosed):
		respondWithError(w, http.StatusConflict, err.Error(), h.logger)
	case errors.Is(err, mainloop.ErrStopped), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		respondWithError(w, http.StatusServiceUnavailable, "сервис недоступен", h.logger)
	case errors.As(err, &storeErr):
		h.logger.Error("local store commit failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Ошибка сохранения изменений", h.logger)
	default:
		h.logger.Error("request failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Внутренняя ошибка", h.logger)
	}
}

func parseID(w http.ResponseWriter, r *http.Request, param string, logger *slog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		logger.Warn("invalid id parameter", "param", param, "value", chi.URLParam(r, param))
		respondWithError(w, http.StatusBadRequest, "Некорректный "+param, logger)
		return uuid.Nil, false
	}
	return id, true
}

// Routes регистрирует маршруты, которые укладываются в таймаут запроса.
func (h *AlbumHandler) Routes(r chi.Router) {
	r.Get("/pins", h.ListPins)
	r.Post("/pins", h.CreatePin)
	r.Delete("/pins/{pinID}", h.DeletePin)

	r.Post("/pins/{pinID}/album", h.OpenAlbum)
	r.Get("/pins/{pinID}/album", h.GetAlbum)
	r.Post("/pins/{pinID}/album/refresh", h.RefreshAlbum)
	r.Delete("/pins/{pinID}/album", h.CloseAlbum)

	r.Get("/photos/{photoID}/image", h.GetImage)
	r.Delete("/photos/{photoID}", h.DeletePhoto)

	r.Get("/viewport", h.GetViewport)
	r.Put("/viewport", h.PutViewport)
}

// StreamRoutes регистрирует долгоживущие websocket-маршруты.
func (h *AlbumHandler) StreamRoutes(r chi.Router) {
	r.Get("/pins/ws", h.StreamPins)
	r.Get("/pins/{pinID}/album/ws", h.StreamAlbum)
}

// ListPins отдает все метки карты.
func (h *AlbumHandler) ListPins(w http.ResponseWriter, r *http.Request) {
	var pins []domain.Pin
	err := h.loop.Do(r.Context(), func() error {
		pins = h.service.Pins()
		return nil
	})
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, pins, h.logger)
}

// CreatePin создает метку по нажатию на карту.
func (h *AlbumHandler) CreatePin(w http.ResponseWriter, r *http.Request) {
	var req createPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Latitude == nil || req.Longitude == nil {
		h.logger.Warn("invalid create pin request", "error", err)
		respondWithError(w, http.StatusBadRequest, "Ожидается {latitude, longitude}", h.logger)
		return
	}
	if *req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180 {
		respondWithError(w, http.StatusBadRequest, "Координаты вне допустимого диапазона", h.logger)
		return
	}

	var pin domain.Pin
	err := h.loop.Do(r.Context(), func() error {
		var err error
		pin, err = h.service.AddPin(r.Context(), *req.Latitude, *req.Longitude)
		return err
	})
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, pin, h.logger)
}

// DeletePin удаляет метку вместе с альбомом.
func (h *AlbumHandler) DeletePin(w http.ResponseWriter, r *http.Request) {
	pinID, ok := parseID(w, r, "pinID", h.logger)
	if !ok {
		return
	}
	err := h.loop.Do(r.Context(), func() error {
		if err := h.service.DeletePin(r.Context(), pinID); err != nil {
			return err
		}
		delete(h.streams, pinID)
		return nil
	})
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OpenAlbum показывает альбом; пустой альбом запускает поиск.
func (h *AlbumHandler) OpenAlbum(w http.ResponseWriter, r *http.Request) {
	pinID, ok := parseID(w, r, "pinID", h.logger)
	if !ok {
		return
	}

	var resp albumResponse
	err := h.loop.Do(r.Context(), func() error {
		stream, ok := h.streams[pinID]
		if !ok {
			stream = NewAlbumStream(pinID, h.logger)
		}
		session, err := h.service.OpenAlbum(r.Context(), pinID, stream)
		if err != nil {
			return err
		}
		h.streams[pinID] = stream
		resp = h.album(session, stream)
		return nil
	})
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp, h.logger)
}

// GetAlbum отдает текущее состояние открытого альбома.
func (h *AlbumHandler) GetAlbum(w http.ResponseWriter, r *http.Request) {
	pinID, ok := parseID(w, r, "pinID", h.logger)
	if !ok {
		return
	}

	var resp albumResponse
	var found bool
	err := h.loop.Do(r.Context(), func() error {
		session, ok := h.service.Session(pinID)
		if !ok {
			return nil
		}
		found = true
		resp = h.album(session, h.streams[pinID])
		return nil
	})
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	if !found {
		respondWithError(w, http.StatusNotFound, "Альбом не открыт", h.logger)
		return
	}
	respondWithJSON(w, http.StatusOK, resp, h.logger)
}

// RefreshAlbum обрабатывает кнопку "новая коллекция".
func (h *AlbumHandler) RefreshAlbum(w http.ResponseWriter, r *http.Request) {
	pinID, ok := parseID(w, r, "pinID", h.logger)
	if !ok {
		return
	}

	var resp albumResponse
	err := h.loop.Do(r.Context(), func() error {
		session, ok := h.service.Session(pinID)
		if !ok {
			return domain.ErrSessionClosed
		}
		if err := session.Refresh(r.Context()); err != nil {
			return err
		}
		resp = h.album(session, h.streams[pinID])
		return nil
	})
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, resp, h.logger)
}

// CloseAlbum вызывается при уходе с экрана альбома.
func (h *AlbumHandler) CloseAlbum(w http.ResponseWriter, r *http.Request) {
	pinID, ok := parseID(w, r, "pinID", h.logger)
	if !ok {
		return
	}
	err := h.loop.Do(r.Context(), func() error {
		h.service.CloseAlbum(pinID)
		delete(h.streams, pinID)
		return nil
	})
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StreamAlbum открывает websocket с пачками изменений альбома.
func (h *AlbumHandler) StreamAlbum(w http.ResponseWriter, r *http.Request) {
	pinID, ok := parseID(w, r, "pinID", h.logger)
	if !ok {
		return
	}

	var stream *AlbumStream
	err := h.loop.Do(r.Context(), func() error {
		stream = h.streams[pinID]
		return nil
	})
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	if stream == nil {
		respondWithError(w, http.StatusNotFound, "Альбом не открыт", h.logger)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	stream.Serve(conn)
}

// StreamPins открывает websocket со вставками и удалениями меток карты.
func (h *AlbumHandler) StreamPins(w http.ResponseWriter, r *http.Request) {
	var stream *AlbumStream
	err := h.loop.Do(r.Context(), func() error {
		if h.pins == nil {
			h.pins = NewPinsStream(h.logger)
			h.service.SubscribePins(h.pins)
		}
		stream = h.pins
		return nil
	})
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	stream.Serve(conn)
}

// GetImage отдает байты изображения; если их еще нет, запускает загрузку и отвечает 202.
func (h *AlbumHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	photoID, ok := parseID(w, r, "photoID", h.logger)
	if !ok {
		return
	}

	var data []byte
	err := h.loop.Do(r.Context(), func() error {
		photo, ok := h.service.Photo(photoID)
		if !ok {
			return domain.ErrPhotoNotFound
		}
		if !photo.Pending() {
			data = photo.ImageData
			return nil
		}
		_, err := h.service.EnsureImage(r.Context(), photoID)
		return err
	})
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	if data == nil {
		respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "pending"}, h.logger)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("failed to write image", "photo_id", photoID, "error", err)
	}
}

// DeletePhoto удаляет выбранное фото.
func (h *AlbumHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	photoID, ok := parseID(w, r, "photoID", h.logger)
	if !ok {
		return
	}
	err := h.loop.Do(r.Context(), func() error {
		return h.service.DeletePhoto(r.Context(), photoID)
	})
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetViewport отдает последнюю область карты.
func (h *AlbumHandler) GetViewport(w http.ResponseWriter, r *http.Request) {
	viewport, ok, err := preferences.LoadViewport(r.Context(), h.prefs)
	if err != nil {
		h.logger.Error("failed to load viewport", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Ошибка чтения настроек", h.logger)
		return
	}
	if !ok {
		respondWithError(w, http.StatusNotFound, "Область карты не сохранена", h.logger)
		return
	}
	respondWithJSON(w, http.StatusOK, viewport, h.logger)
}

func (h *AlbumHandler) PutViewport(w http.ResponseWriter, r *http.Request) {
	var viewport domain.Viewport
	if err := json.NewDecoder(r.Body).Decode(&viewport); err != nil {
		respondWithError(w, http.StatusBadRequest, "Некорректное тело запроса", h.logger)
		return
	}
	if err := preferences.SaveViewport(r.Context(), h.prefs, viewport); err != nil {
		h.logger.Error("failed to save viewport", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Ошибка сохранения настроек", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AlbumHandler) album(session *usecase.AlbumSession, stream *AlbumStream) albumResponse {
	photos := session.Photos()
	resp := albumResponse{
		PinID:         session.Pin().ID,
		State:         session.State().String(),
		ActionEnabled: session.ActionEnabled(),
		Empty:         len(photos) == 0,
		Alerts:        []Alert{},
		Photos:        make([]photoResponse, 0, len(photos)),
	}
	if stream != nil {
		resp.Alerts = append(resp.Alerts, stream.Alerts()...)
	}
	for _, p := range photos {
		resp.Photos = append(resp.Photos, photoResponse{ID: p.ID, URLPath: p.URLPath, HasImage: !p.Pending()})
	}
	return resp
}
