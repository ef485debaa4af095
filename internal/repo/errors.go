package repo

import (
	"errors"

	"github.com/shaiso/AgentSquad/internal/domain"
)

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД. Совпадает с domain.ErrNotFound,
	// чтобы вызывающие проверяли одну ошибку.
	ErrNotFound = domain.ErrNotFound

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")
)
