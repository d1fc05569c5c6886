package flickr

import "github.com/GoArmGo/PinAlbum/internal/domain"

// FlickrSearchResponse — ответ flickr.photos.search
type FlickrSearchResponse struct {
	Photos *FlickrPhotoList `json:"photos"`
}

// FlickrPhotoList — одна страница результатов поиска
type FlickrPhotoList struct {
	Page    int                      `json:"page"`
	Pages   int                      `json:"pages"`
	PerPage int                      `json:"perpage"`
	Total   int                      `json:"total"`
	Photo   []domain.PhotoDescriptor `json:"photo"`
}

// FlickrErrorResponse — структурированная ошибка API
type FlickrErrorResponse struct {
	Error  *string `json:"error"`
	Status int     `json:"status"`
}
