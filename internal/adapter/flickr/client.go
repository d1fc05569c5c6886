package flickr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/GoArmGo/PinAlbum/internal/config"
	"github.com/GoArmGo/PinAlbum/internal/domain"
	"github.com/GoArmGo/PinAlbum/internal/metrics"
)

const (
	defaultBaseURL = "https://flickr.com"
	searchMethod   = "flickr.photos.search"
	searchBBox     = "-10,-10,10,10"

	// PerPage — фиксированный размер выборки
	PerPage = 42
	// PageRange — страница выбирается случайно из [0, PageRange)
	PageRange = 10
)

// FlickrAPIClient представляет клиент для взаимодействия с Flickr REST API.
type FlickrAPIClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	imageHost  string
	pageFn     func() int
	logger     *slog.Logger
}

// NewFlickrAPIClient создает новый экземпляр FlickrAPIClient.
func NewFlickrAPIClient(cfg *config.Config, logger *slog.Logger) *FlickrAPIClient {
	baseURL := cfg.FlickrBaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	imageHost := cfg.FlickrImageHost
	if imageHost == "" {
		imageHost = domain.DefaultImageHost
	}
	return &FlickrAPIClient{
		httpClient: &http.Client{Timeout: cfg.HTTPClientTimeout},
		apiKey:     cfg.FlickrAPIKey,
		baseURL:    baseURL,
		imageHost:  imageHost,
		pageFn:     func() int { return rand.IntN(PageRange) },
		logger:     logger,
	}
}

// ImageHost возвращает хост, на котором строятся адреса миниатюр.
func (c *FlickrAPIClient) ImageHost() string {
	return c.imageHost
}

// searchURL строит адрес поиска вокруг координаты со случайной страницей.
func (c *FlickrAPIClient) searchURL(latitude, longitude float64, page int) string {
	params := url.Values{}
	params.Add("method", searchMethod)
	params.Add("api_key", c.apiKey)
	params.Add("bbox", searchBBox)
	params.Add("content_type", "1")
	params.Add("lat", strconv.FormatFloat(latitude, 'f', -1, 64))
	params.Add("lon", strconv.FormatFloat(longitude, 'f', -1, 64))
	params.Add("page", strconv.Itoa(page))
	params.Add("per_page", strconv.Itoa(PerPage))
	params.Add("format", "json")
	params.Add("nojsoncallback", "1")

	return fmt.Sprintf("%s/services/rest/?%s", c.baseURL, params.Encode())
}

// SearchPhotos ищет фото рядом с координатой. Блокирующий вызов:
// вызывающий сам переносит результат на главный цикл.
func (c *FlickrAPIClient) SearchPhotos(ctx context.Context, latitude, longitude float64) ([]domain.PhotoDescriptor, error) {
	start := time.Now()
	page := c.pageFn()
	endpoint := c.searchURL(latitude, longitude, page)

	descriptors, err := c.search(ctx, endpoint)
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(resultLabel(err)).Inc()
		c.logger.Warn("flickr search failed",
			"lat", latitude,
			"lon", longitude,
			"page", page,
			"error", err,
		)
		return []domain.PhotoDescriptor{}, err
	}

	metrics.SearchRequestsTotal.WithLabelValues("ok").Inc()
	c.logger.Info("flickr search completed",
		"lat", latitude,
		"lon", longitude,
		"page", page,
		"found", len(descriptors),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return descriptors, nil
}

func (c *FlickrAPIClient) search(ctx context.Context, endpoint string) ([]domain.PhotoDescriptor, error) {
	// тело разбирается при любом статусе: ошибка API тоже приходит JSON-ом
	body, status, _, err := c.get(ctx, "search photos", endpoint)
	if err != nil {
		return nil, err
	}

	var searchResponse FlickrSearchResponse
	decodeErr := strictDecode(body, &searchResponse)
	if decodeErr == nil && searchResponse.Photos == nil {
		decodeErr = errors.New(`missing "photos" object`)
	}
	if decodeErr == nil {
		if searchResponse.Photos.Photo == nil {
			return []domain.PhotoDescriptor{}, nil
		}
		return searchResponse.Photos.Photo, nil
	}

	// форма не совпала, пробуем разобрать структурированную ошибку
	var errorResponse FlickrErrorResponse
	if err := strictDecode(body, &errorResponse); err == nil && errorResponse.Error != nil {
		return nil, &domain.ServiceError{Message: *errorResponse.Error, Status: errorResponse.Status}
	}
	if status < 200 || status > 299 {
		// например, HTML-страница прокси с 502
		return nil, &domain.TransportError{Op: "search photos", Err: fmt.Errorf("unexpected status %d", status)}
	}
	return nil, &domain.DecodeError{Op: "search photos", Err: decodeErr}
}

// DownloadImage скачивает изображение по адресу и возвращает сырые байты.
func (c *FlickrAPIClient) DownloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	body, status, contentType, err := c.get(ctx, "download image", imageURL)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &domain.TransportError{Op: "download image", Err: fmt.Errorf("unexpected status %d", status)}
	}
	c.logger.Debug("image downloaded", "url", imageURL, "bytes", len(body), "content_type", contentType)
	return body, nil
}

// get выполняет GET и читает тело целиком.
func (c *FlickrAPIClient) get(ctx context.Context, op, endpoint string) ([]byte, int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, "", &domain.TransportError{Op: op, Err: fmt.Errorf("ошибка создания HTTP-запроса: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, "", &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, "", &domain.TransportError{Op: op, Err: fmt.Errorf("ошибка чтения тела ответа: %w", err)}
	}
	return body, resp.StatusCode, resp.Header.Get("Content-Type"), nil
}

func strictDecode(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

func resultLabel(err error) string {
	var serviceErr *domain.ServiceError
	var decodeErr *domain.DecodeError
	switch {
	case errors.As(err, &serviceErr):
		return "service_error"
	case errors.As(err, &decodeErr):
		return "decode_error"
	default:
		return "transport_error"
	}
}
