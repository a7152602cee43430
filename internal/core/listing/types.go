package listing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PlaceholderImageURL is stored on listings created without an image.
const PlaceholderImageURL = "https://placehold.co/243x353?text=No+Image"

// Identity is the opaque owner reference handed to us by the auth layer.
type Identity string

type PostType string

const (
	PostTypeSell PostType = "sell"
	PostTypeBuy  PostType = "buy"
)

func (p PostType) Valid() bool { return p == PostTypeSell || p == PostTypeBuy }

// FieldStatus tracks enrichment of a single listing field.
type FieldStatus uint8

const (
	// StatusIdle means the field did not need enrichment.
	StatusIdle FieldStatus = iota
	StatusPending
	StatusDone
	StatusError
)

var statusNames = [...]string{"idle", "pending", "done", "error"}

func (s FieldStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("FieldStatus(%d)", uint8(s))
}

// ParseFieldStatus accepts the wire names. An empty string is idle.
func ParseFieldStatus(v string) (FieldStatus, error) {
	if v == "" {
		return StatusIdle, nil
	}
	for i, name := range statusNames {
		if name == v {
			return FieldStatus(i), nil
		}
	}
	return StatusIdle, fmt.Errorf("unknown field status %q", v)
}

func (s FieldStatus) MarshalText() ([]byte, error) {
	if int(s) >= len(statusNames) {
		return nil, fmt.Errorf("invalid field status %d", uint8(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *FieldStatus) UnmarshalText(b []byte) error {
	v, err := ParseFieldStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Settled reports whether a job has finished with the field.
func (s FieldStatus) Settled() bool { return s == StatusDone || s == StatusError }

// Enrichment is the per-field status block embedded in a listing.
type Enrichment struct {
	PriceStatus FieldStatus `json:"priceStatus"`
	ImageStatus FieldStatus `json:"imageStatus"`
	LastError   *string     `json:"lastError"`
}

type Listing struct {
	ID           string     `json:"id"`
	Owner        Identity   `json:"owner"`
	CardName     string     `json:"cardName"`
	PostType     PostType   `json:"postType"`
	Price        *float64   `json:"price"`
	Condition    string     `json:"condition"`
	CardImageURL string     `json:"cardImageUrl"`
	IsAPIPrice   bool       `json:"isApiPrice"`
	IsActive     bool       `json:"isActive"`
	Enrichment   Enrichment `json:"enrichment"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Fields is a partial update. Nil members are left untouched by the store.
type Fields struct {
	CardName     *string
	PostType     *PostType
	Price        *float64
	ClearPrice   bool
	Condition    *string
	CardImageURL *string
	IsAPIPrice   *bool
	IsActive     *bool
	Enrichment   *Enrichment
}

// Empty reports whether applying f would change nothing.
func (f Fields) Empty() bool {
	return f.CardName == nil && f.PostType == nil && f.Price == nil && !f.ClearPrice &&
		f.Condition == nil && f.CardImageURL == nil && f.IsAPIPrice == nil &&
		f.IsActive == nil && f.Enrichment == nil
}

// Apply copies the set members of f onto l.
func (f Fields) Apply(l *Listing) {
	if f.CardName != nil {
		l.CardName = *f.CardName
	}
	if f.PostType != nil {
		l.PostType = *f.PostType
	}
	if f.ClearPrice {
		l.Price = nil
	}
	if f.Price != nil {
		p := *f.Price
		l.Price = &p
	}
	if f.Condition != nil {
		l.Condition = *f.Condition
	}
	if f.CardImageURL != nil {
		l.CardImageURL = *f.CardImageURL
	}
	if f.IsAPIPrice != nil {
		l.IsAPIPrice = *f.IsAPIPrice
	}
	if f.IsActive != nil {
		l.IsActive = *f.IsActive
	}
	if f.Enrichment != nil {
		e := *f.Enrichment
		if e.LastError != nil {
			msg := *e.LastError
			e.LastError = &msg
		}
		l.Enrichment = e
	}
}

// IsPlaceholder treats empty and any placehold.co URL as "no image yet".
func IsPlaceholder(url string) bool {
	url = strings.TrimSpace(url)
	return url == "" || url == PlaceholderImageURL || strings.Contains(url, "placehold.co")
}

// NeedsPrice is true when the price is missing or zero. Manually entered
// non-zero prices are never re-fetched.
func NeedsPrice(l *Listing) bool {
	return l.Price == nil || *l.Price <= 0
}

func NeedsImage(l *Listing) bool {
	return IsPlaceholder(l.CardImageURL)
}

func NeedsEnrichment(l *Listing) bool {
	return NeedsPrice(l) || NeedsImage(l)
}

// Clone returns a deep copy safe to hand to other goroutines.
func (l *Listing) Clone() *Listing {
	c := *l
	if l.Price != nil {
		p := *l.Price
		c.Price = &p
	}
	if l.Enrichment.LastError != nil {
		msg := *l.Enrichment.LastError
		c.Enrichment.LastError = &msg
	}
	return &c
}

// MarshalEnrichment is used by stores that keep the status block as a JSON column.
func MarshalEnrichment(e Enrichment) ([]byte, error) { return json.Marshal(e) }

func UnmarshalEnrichment(b []byte) (Enrichment, error) {
	var e Enrichment
	if len(b) == 0 {
		return e, nil
	}
	err := json.Unmarshal(b, &e)
	return e, err
}
