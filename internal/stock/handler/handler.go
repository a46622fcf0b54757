package handler

import (
	"net/http"
	"strconv"

	"github.com/logiclinic/logiclinic-backend/pkg/httputil"
)

// pagination reads page/per_page query params with the usual bounds
func pagination(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

func totalPages(total int64, perPage int) int {
	pages := int(total) / perPage
	if int(total)%perPage > 0 {
		pages++
	}
	return pages
}

// actor returns the authenticated user ID as a nullable pointer
func actor(r *http.Request) *string {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		return nil
	}
	return &userID
}
