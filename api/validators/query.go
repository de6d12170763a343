package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/pagination"
)

// PageQuery is the ?limit=&cursor= pair accepted by list endpoints.
type PageQuery struct {
	Limit  int    `json:"limit" validate:"gte=1,lte=100"`
	Cursor string `json:"cursor" validate:"omitempty,max=512"`
}

// ParsePageQuery reads the paging parameters, defaulting limit when absent.
func ParsePageQuery(r *http.Request) (PageQuery, error) {
	query := r.URL.Query()
	page := PageQuery{
		Limit:  pagination.DefaultLimit,
		Cursor: strings.TrimSpace(query.Get("cursor")),
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return PageQuery{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid query parameters").
				WithDetails(map[string]any{"limit": "must be a whole number"})
		}
		page.Limit = limit
	}
	if err := validate.Struct(page); err != nil {
		return PageQuery{}, formatValidationErrors(err)
	}
	return page, nil
}

// PathUUID reads a chi route parameter that must hold a UUID.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, name)))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid identifier").
			WithDetails(map[string]any{name: "must be a UUID"})
	}
	return id, nil
}
