package listing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"cardmarket/internal/logger"
	"cardmarket/internal/utils/parser"
)

// IdentityHeader carries the caller's opaque identity, set by the auth layer in front of us.
const IdentityHeader = "X-User-Id"

const defaultCondition = "Near Mint"

// Enqueuer schedules enrichment for a listing.
type Enqueuer interface {
	Enqueue(ctx context.Context, listingID, cardName string) (bool, error)
}

// Healer re-queues incomplete listings found by a read without holding it up.
type Healer interface {
	ScanDetached(listings []*Listing)
}

type Handler struct {
	log    *logger.Logger
	store  Store
	queue  Enqueuer
	healer Healer
}

func NewHandler(store Store, queue Enqueuer, healer Healer) *Handler {
	return &Handler{log: logger.New("ListingAPI"), store: store, queue: queue, healer: healer}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(errorResponse{Success: false, Error: msg})
}

type listQuery struct {
	Limit           int  `query:"limit" default:"100"`
	IncludeInactive bool `query:"include_inactive"`
}

type listResponse struct {
	Success  bool       `json:"success"`
	Listings []*Listing `json:"listings"`
}

// HandleList is the catalog read. It also hands the page to self-heal.
func (h *Handler) HandleList(c *fiber.Ctx) error {
	var q listQuery
	if err := parser.ParseQuery(c, &q); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}
	items, err := h.store.List(c.Context(), Filter{ActiveOnly: !q.IncludeInactive, Limit: q.Limit})
	if err != nil {
		h.log.LogErrorf("list listings: %v", err)
		return fail(c, fiber.StatusInternalServerError, "failed to list listings")
	}
	if h.healer != nil {
		h.healer.ScanDetached(items)
	}
	return c.JSON(listResponse{Success: true, Listings: nonNil(items)})
}

func (h *Handler) HandleListMine(c *fiber.Ctx) error {
	owner := identity(c)
	if owner == "" {
		return fail(c, fiber.StatusUnauthorized, "identity required")
	}
	items, err := h.store.List(c.Context(), Filter{Owner: owner})
	if err != nil {
		h.log.LogErrorf("list listings for %s: %v", owner, err)
		return fail(c, fiber.StatusInternalServerError, "failed to list listings")
	}
	if h.healer != nil {
		h.healer.ScanDetached(items)
	}
	return c.JSON(listResponse{Success: true, Listings: nonNil(items)})
}

func (h *Handler) HandleGet(c *fiber.Ctx) error {
	l, err := h.store.GetByID(c.Context(), c.Params("id"))
	if errors.Is(err, ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "not_found")
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "failed to load listing")
	}
	return c.JSON(l)
}

type createRequest struct {
	CardName     string   `json:"cardName"`
	PostType     PostType `json:"postType"`
	Price        *float64 `json:"price"`
	Condition    string   `json:"condition"`
	CardImageURL string   `json:"cardImageUrl"`
}

func (h *Handler) HandleCreate(c *fiber.Ctx) error {
	owner := identity(c)
	if owner == "" {
		return fail(c, fiber.StatusUnauthorized, "identity required")
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	req.CardName = strings.TrimSpace(req.CardName)
	if req.CardName == "" {
		return fail(c, fiber.StatusBadRequest, "cardName is required")
	}
	if req.PostType == "" {
		req.PostType = PostTypeSell
	}
	if !req.PostType.Valid() {
		return fail(c, fiber.StatusBadRequest, "postType must be sell or buy")
	}

	l := newListing(owner, req)
	if err := h.store.Create(c.Context(), l); err != nil {
		h.log.LogErrorf("create listing: %v", err)
		return fail(c, fiber.StatusInternalServerError, "failed to create listing")
	}
	h.enqueueIfNeeded(c.Context(), l)
	return c.Status(fiber.StatusCreated).JSON(l)
}

// newListing applies the create defaults: Near Mint, placeholder image, and no
// price unless a positive one was given.
func newListing(owner Identity, req createRequest) *Listing {
	l := &Listing{
		ID:           uuid.New().String(),
		Owner:        owner,
		CardName:     req.CardName,
		PostType:     req.PostType,
		Condition:    strings.TrimSpace(req.Condition),
		CardImageURL: strings.TrimSpace(req.CardImageURL),
		IsActive:     true,
	}
	if l.Condition == "" {
		l.Condition = defaultCondition
	}
	if req.Price != nil && *req.Price > 0 {
		p := *req.Price
		l.Price = &p
	}
	if IsPlaceholder(l.CardImageURL) {
		l.CardImageURL = PlaceholderImageURL
	}
	return l
}

// MaxBatchSize bounds how many listings one batch request may create.
const MaxBatchSize = 200

type batchRequest struct {
	CardNames []string `json:"cardNames"`
	PostType  PostType `json:"postType"`
	Condition string   `json:"condition"`
}

type batchResponse struct {
	Success  bool       `json:"success"`
	Created  int        `json:"created"`
	Listings []*Listing `json:"listings"`
}

// HandleCreateBatch creates one placeholder listing per non-empty card name and
// queues each for enrichment. Repeated names become separate listings.
func (h *Handler) HandleCreateBatch(c *fiber.Ctx) error {
	owner := identity(c)
	if owner == "" {
		return fail(c, fiber.StatusUnauthorized, "identity required")
	}
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	if req.PostType == "" {
		req.PostType = PostTypeSell
	}
	if !req.PostType.Valid() {
		return fail(c, fiber.StatusBadRequest, "postType must be sell or buy")
	}
	var names []string
	for _, n := range req.CardNames {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return fail(c, fiber.StatusBadRequest, "cardNames must contain at least one name")
	}
	if len(names) > MaxBatchSize {
		return fail(c, fiber.StatusBadRequest, "too many card names in one batch")
	}

	created := make([]*Listing, 0, len(names))
	for _, name := range names {
		l := newListing(owner, createRequest{CardName: name, PostType: req.PostType, Condition: req.Condition})
		if err := h.store.Create(c.Context(), l); err != nil {
			h.log.LogErrorf("batch create %q: %v", name, err)
			return fail(c, fiber.StatusInternalServerError, "failed to create listings")
		}
		h.enqueueIfNeeded(c.Context(), l)
		created = append(created, l)
	}
	h.log.LogInfof("batch created %d listings for %s", len(created), owner)
	return c.Status(fiber.StatusCreated).JSON(batchResponse{Success: true, Created: len(created), Listings: created})
}

type updateRequest struct {
	CardName     *string         `json:"cardName"`
	PostType     *PostType       `json:"postType"`
	Price        json.RawMessage `json:"price"`
	Condition    *string         `json:"condition"`
	CardImageURL *string         `json:"cardImageUrl"`
	IsActive     *bool           `json:"isActive"`
}

func (h *Handler) HandleUpdate(c *fiber.Ctx) error {
	id := c.Params("id")
	current, ok := h.loadOwned(c, id)
	if !ok {
		return nil
	}

	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	f, msg := req.fields()
	if msg != "" {
		return fail(c, fiber.StatusBadRequest, msg)
	}
	if f.Empty() {
		return c.JSON(current)
	}
	if err := h.store.UpdateFields(c.Context(), id, f); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "not_found")
		}
		h.log.LogErrorf("update listing %s: %v", id, err)
		return fail(c, fiber.StatusInternalServerError, "failed to update listing")
	}
	updated, err := h.store.GetByID(c.Context(), id)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "failed to load listing")
	}
	h.enqueueIfNeeded(c.Context(), updated)
	return c.JSON(updated)
}

// fields turns the patch body into a store update. A null or non-positive price
// clears it; a manual positive price is never treated as fetched.
func (r updateRequest) fields() (Fields, string) {
	var f Fields
	if r.CardName != nil {
		name := strings.TrimSpace(*r.CardName)
		if name == "" {
			return f, "cardName must not be empty"
		}
		f.CardName = &name
	}
	if r.PostType != nil {
		if !r.PostType.Valid() {
			return f, "postType must be sell or buy"
		}
		f.PostType = r.PostType
	}
	if len(r.Price) > 0 {
		manual := false
		f.IsAPIPrice = &manual
		var p *float64
		if err := json.Unmarshal(r.Price, &p); err != nil {
			return f, "price must be a number or null"
		}
		if p == nil || *p <= 0 {
			f.ClearPrice = true
		} else {
			f.Price = p
		}
	}
	if r.Condition != nil {
		cond := strings.TrimSpace(*r.Condition)
		f.Condition = &cond
	}
	if r.CardImageURL != nil {
		img := strings.TrimSpace(*r.CardImageURL)
		if IsPlaceholder(img) {
			img = PlaceholderImageURL
		}
		f.CardImageURL = &img
	}
	f.IsActive = r.IsActive
	return f, ""
}

func (h *Handler) HandleDelete(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok := h.loadOwned(c, id); !ok {
		return nil
	}
	if err := h.store.Delete(c.Context(), id); err != nil && !errors.Is(err, ErrNotFound) {
		h.log.LogErrorf("delete listing %s: %v", id, err)
		return fail(c, fiber.StatusInternalServerError, "failed to delete listing")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type enrichResponse struct {
	Success bool `json:"success"`
	Queued  bool `json:"queued"`
}

// HandleEnrich re-triggers enrichment. Listings that are complete are not queued.
func (h *Handler) HandleEnrich(c *fiber.Ctx) error {
	l, err := h.store.GetByID(c.Context(), c.Params("id"))
	if errors.Is(err, ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "not_found")
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "failed to load listing")
	}
	queued := false
	if NeedsEnrichment(l) {
		queued, err = h.queue.Enqueue(c.Context(), l.ID, l.CardName)
		if err != nil {
			h.log.LogErrorf("enqueue %s: %v", l.ID, err)
			return fail(c, fiber.StatusServiceUnavailable, "enrichment queue unavailable")
		}
	}
	return c.Status(fiber.StatusAccepted).JSON(enrichResponse{Success: true, Queued: queued})
}

// loadOwned writes the error response itself and reports false when the caller
// may not modify the listing.
func (h *Handler) loadOwned(c *fiber.Ctx, id string) (*Listing, bool) {
	owner := identity(c)
	if owner == "" {
		_ = fail(c, fiber.StatusUnauthorized, "identity required")
		return nil, false
	}
	l, err := h.store.GetByID(c.Context(), id)
	if errors.Is(err, ErrNotFound) {
		_ = fail(c, fiber.StatusNotFound, "not_found")
		return nil, false
	}
	if err != nil {
		_ = fail(c, fiber.StatusInternalServerError, "failed to load listing")
		return nil, false
	}
	if l.Owner != "" && l.Owner != owner {
		_ = fail(c, fiber.StatusForbidden, "not your listing")
		return nil, false
	}
	return l, true
}

// enqueueIfNeeded never fails the request; a lost enqueue is recovered by self-heal.
func (h *Handler) enqueueIfNeeded(ctx context.Context, l *Listing) {
	if h.queue == nil || !NeedsEnrichment(l) {
		return
	}
	if _, err := h.queue.Enqueue(ctx, l.ID, l.CardName); err != nil {
		h.log.LogWarnf("enqueue %s: %v", l.ID, err)
	}
}

func identity(c *fiber.Ctx) Identity {
	return Identity(strings.TrimSpace(c.Get(IdentityHeader)))
}

func nonNil(items []*Listing) []*Listing {
	if items == nil {
		return []*Listing{}
	}
	return items
}
