package localstore

import "time"

// Domain names one independently-consistent slice of persisted state. There is
// no cross-domain transactionality; each domain is flushed on its own.
type Domain string

const (
	DomainFavorites  Domain = "favorites"
	DomainCart       Domain = "cart"
	DomainSeenNotifs Domain = "seen_notifs"
	DomainIdentity   Domain = "identity"
)

// Domains lists every persisted domain, used at load and clear time.
func Domains() []Domain {
	return []Domain{DomainFavorites, DomainCart, DomainSeenNotifs, DomainIdentity}
}

// DomainState is the gorm row backing one domain's durable copy.
type DomainState struct {
	Domain    string    `gorm:"primaryKey;column:domain"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName pins the table used by the goose migrations.
func (DomainState) TableName() string {
	return "domain_states"
}
