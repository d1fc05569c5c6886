package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultImageHost — хост, с которого отдаются миниатюры Flickr.
const DefaultImageHost = "live.staticflickr.com"

// Pin представляет точку на карте, к которой привязан альбом,
// соответствует таблице pins в бд
type Pin struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Photo представляет одну фотографию альбома.
// ImageData == nil означает, что изображение еще не скачано.
type Photo struct {
	ID        uuid.UUID `json:"id"`
	PinID     uuid.UUID `json:"pin_id"`
	URLPath   string    `json:"url_path"`
	ImageData []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Pending сообщает, ждет ли фото загрузки изображения.
func (p Photo) Pending() bool {
	return p.ImageData == nil
}

// PhotoDescriptor — сырые метаданные фото, как их отдает поиск Flickr.
type PhotoDescriptor struct {
	ID       string `json:"id"`
	Owner    string `json:"owner"`
	Secret   string `json:"secret"`
	Server   string `json:"server"`
	Farm     int    `json:"farm"`
	Title    string `json:"title"`
	IsPublic int    `json:"ispublic"`
	IsFriend int    `json:"isfriend"`
	IsFamily int    `json:"isfamily"`
}

// URL возвращает адрес квадратной миниатюры (суффикс _q) на хосте по умолчанию.
func (d PhotoDescriptor) URL() string {
	return d.URLOn(DefaultImageHost)
}

// URLOn возвращает адрес миниатюры на указанном хосте.
func (d PhotoDescriptor) URLOn(host string) string {
	return fmt.Sprintf("https://%s/%s/%s_%s_q.jpg", host, d.Server, d.ID, d.Secret)
}
