package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/markd/internal/domain"
	"github.com/MrSnakeDoc/markd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/markd/internal/httpserver/mw"
	"github.com/MrSnakeDoc/markd/internal/logger"
)

const maxCreateBody = 16 << 10

type createRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Owner string `json:"user_id"`
}

// scopeOwner resolves the owner a request acts on. An explicit owner must
// match the authenticated one; an empty one defaults to it.
func scopeOwner(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	owner := mw.OwnerFrom(r.Context())
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	if requested != "" && requested != owner {
		writeError(w, http.StatusForbidden, "owner mismatch")
		return "", false
	}
	return owner, true
}

// ListBookmarks returns the owner's rows, newest first.
func ListBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := scopeOwner(w, r, r.URL.Query().Get("owner"))
		if !ok {
			return
		}

		rows, err := d.Store.ListByOwner(r.Context(), owner)
		if err != nil {
			d.Logger.Error("list bookmarks failed", logger.Owner(owner), logger.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list bookmarks")
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

// CreateBookmark stores a row. The server assigns id and created_at and
// normalizes url and title.
func CreateBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, maxCreateBody))
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		owner, ok := scopeOwner(w, r, req.Owner)
		if !ok {
			return
		}

		row, err := d.Store.Create(r.Context(), req.URL, req.Title, owner)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidURL) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			d.Logger.Error("create bookmark failed", logger.Owner(owner), logger.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create bookmark")
			return
		}

		d.Logger.Info("bookmark created",
			logger.Owner(owner),
			logger.String("id", row.ID))
		writeJSON(w, http.StatusCreated, row)
	}
}

// DeleteBookmark removes a row scoped to the owner. A row that matches
// nothing still answers 204.
func DeleteBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := scopeOwner(w, r, r.URL.Query().Get("owner"))
		if !ok {
			return
		}

		// chi matches on the raw path, so the parameter may still be escaped.
		id, err := url.PathUnescape(chi.URLParam(r, "id"))
		if err != nil || id == "" {
			writeError(w, http.StatusBadRequest, "missing id")
			return
		}

		removed, err := d.Store.Delete(r.Context(), id, owner)
		if err != nil {
			d.Logger.Error("delete bookmark failed",
				logger.Owner(owner),
				logger.String("id", id),
				logger.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to delete bookmark")
			return
		}
		if removed {
			d.Logger.Info("bookmark deleted", logger.Owner(owner), logger.String("id", id))
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Feed upgrades to the owner's change feed websocket.
func Feed(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := scopeOwner(w, r, r.URL.Query().Get("owner"))
		if !ok {
			return
		}
		d.Relay.Serve(w, r, owner)
	}
}
