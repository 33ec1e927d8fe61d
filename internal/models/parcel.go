package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DestinationCode identifies a serviced country endpoint.
type DestinationCode string

const (
	DestMD DestinationCode = "MD"
	DestUK DestinationCode = "UK"
	DestBE DestinationCode = "BE"
	DestNL DestinationCode = "NL"
)

// ParcelStatus is the parcel lifecycle state. Delivered is terminal.
type ParcelStatus string

const (
	StatusPending   ParcelStatus = "pending"
	StatusDelivered ParcelStatus = "delivered"
)

// Currency is the settlement currency derived from the route.
type Currency string

const (
	CurrencyGBP Currency = "GBP"
	CurrencyEUR Currency = "EUR"
)

// Appearance is the rough physical category of a parcel.
type Appearance string

const (
	AppearanceBox      Appearance = "box"
	AppearanceBag      Appearance = "bag"
	AppearanceEnvelope Appearance = "envelope"
	AppearanceOther    Appearance = "other"
)

// ContactDetails holds sender or receiver contact info, stored as JSONB.
type ContactDetails struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// Value implements driver.Valuer for JSONB persistence.
func (c ContactDetails) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JSONB columns.
func (c *ContactDetails) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	case nil:
		*c = ContactDetails{}
		return nil
	default:
		return fmt.Errorf("unsupported contact details type %T", src)
	}
}

// Parcel is the central entity: one package carried by one driver on one route.
// Human ID, price and currency are derived at write time and stored; they must
// always equal the recomputation from (destination, sequence) and (weight,
// route) as of the last write.
type Parcel struct {
	ID                  string          `db:"id" json:"id"`
	HumanID             string          `db:"human_id" json:"human_id"`
	NumericID           int             `db:"numeric_id" json:"numeric_id"`
	DriverID            string          `db:"driver_id" json:"driver_id"`
	WeekID              string          `db:"week_id" json:"week_id"`
	OriginCode          DestinationCode `db:"origin_code" json:"origin_code"`
	DeliveryDestination DestinationCode `db:"delivery_destination" json:"delivery_destination"`
	SenderDetails       ContactDetails  `db:"sender_details" json:"sender_details"`
	ReceiverDetails     ContactDetails  `db:"receiver_details" json:"receiver_details"`
	ContentDescription  *string         `db:"content_description" json:"content_description,omitempty"`
	Appearance          *Appearance     `db:"appearance" json:"appearance,omitempty"`
	Weight              float64         `db:"weight" json:"weight"`
	Price               float64         `db:"price" json:"price"`
	Currency            Currency        `db:"currency" json:"currency"`
	PhotoURL            *string         `db:"photo_url" json:"photo_url,omitempty"`
	RouteOrder          int             `db:"route_order" json:"route_order"`
	Labels              pq.StringArray  `db:"labels" json:"labels"`
	Status              ParcelStatus    `db:"status" json:"status"`
	IsArchived          bool            `db:"is_archived" json:"is_archived"`
	ClientSatisfied     *bool           `db:"client_satisfied" json:"client_satisfied,omitempty"`
	DeliveryNote        *string         `db:"delivery_note" json:"delivery_note,omitempty"`
	DeliveredAt         *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// HasLabel reports whether the parcel carries the given audit label.
func (p *Parcel) HasLabel(label string) bool {
	for _, l := range p.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// ParcelFilter captures listing criteria.
type ParcelFilter struct {
	DriverID string
	WeekID   string
	Status   ParcelStatus
	Archived bool
	Limit    int
	Offset   int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
