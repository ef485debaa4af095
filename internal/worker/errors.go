package worker

import "errors"

// Ошибки runner'а.
var (
	// ErrNoBus — runner создан без шины сообщений.
	ErrNoBus = errors.New("message bus is required")

	// ErrNoInvoker — для роли исполнителя нет invoker'а.
	ErrNoInvoker = errors.New("no invoker for role")

	// ErrInvalidAssignment — тело assignment не разбирается.
	ErrInvalidAssignment = errors.New("invalid assignment")

	// ErrNoEndpoint — у исполнителя не задан Endpoint для HTTP-вызова.
	ErrNoEndpoint = errors.New("worker endpoint is not set")

	// ErrQueueFull — очередь назначений переполнена.
	ErrQueueFull = errors.New("assignment queue is full")

	// ErrHTTPRequest — HTTP-запрос завершился ошибкой.
	ErrHTTPRequest = errors.New("http request failed")
)
