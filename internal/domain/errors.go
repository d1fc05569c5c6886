package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPinNotFound   = errors.New("pin not found")
	ErrPhotoNotFound = errors.New("photo not found")
	ErrSessionClosed = errors.New("album session closed")
)

// TransportError — сеть недоступна, таймаут или неуспешный HTTP-статус.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError — тело ответа не совпало с ожидаемой формой.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode error: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ServiceError — структурированная ошибка, которую вернул удаленный API.
// Error() отдает сообщение сервиса как есть: оно показывается пользователю.
type ServiceError struct {
	Message string `json:"error"`
	Status  int    `json:"status"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// LocalStoreError — сбой фиксации изменений в локальном хранилище.
type LocalStoreError struct {
	Op  string
	Err error
}

func (e *LocalStoreError) Error() string {
	return fmt.Sprintf("local store %s: %v", e.Op, e.Err)
}

func (e *LocalStoreError) Unwrap() error { return e.Err }
