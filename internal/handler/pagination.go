package handler

import (
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100

	// Chat history pages are larger: a client loads a whole conversation at once.
	DefaultMessageLimit = 200
	MaxMessageLimit     = 500
)

type PaginationParams struct {
	Limit  int
	Offset int
}

func ParsePagination(r *http.Request) PaginationParams {
	return parsePagination(r, DefaultLimit, MaxLimit)
}

func ParseMessagePagination(r *http.Request) PaginationParams {
	return parsePagination(r, DefaultMessageLimit, MaxMessageLimit)
}

func parsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}

	return PaginationParams{
		Limit:  limit,
		Offset: offset,
	}
}
