package bus

import "errors"

var (
	// ErrUnknownRecipient — получатель не зарегистрирован (только при ValidateRecipients).
	ErrUnknownRecipient = errors.New("unknown recipient")

	// ErrEmptyRecipient — Send без получателя. Для рассылки есть Broadcast.
	ErrEmptyRecipient = errors.New("recipient is empty")

	// ErrInvalidKind — неизвестный тип сообщения.
	ErrInvalidKind = errors.New("invalid message kind")

	// ErrCorrelationClosed — correlation ID закрыт (execution завершён).
	ErrCorrelationClosed = errors.New("correlation closed")
)
