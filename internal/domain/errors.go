package domain

import "errors"

// ErrNotFound — сущность не найдена в хранилище.
var ErrNotFound = errors.New("not found")
