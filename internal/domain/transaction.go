package domain

// Details is the variant part of a transaction. The set of implementations is
// closed: Transfer, PaydayReward, ConfigureDelegation and Other.
type Details interface {
	isDetails()
}

// Transfer moves CCD from one account to another. The amount lives on the
// enclosing Transaction.
type Transfer struct {
	From string
	To   string
}

// PaydayReward is a protocol-issued staking or delegation reward.
type PaydayReward struct{}

// ConfigureDelegation is an administrative delegation change.
type ConfigureDelegation struct{}

// Other is any detail shape we do not classify. Type keeps the raw
// discriminator for logging.
type Other struct {
	Type string
}

func (Transfer) isDetails()            {}
func (PaydayReward) isDetails()        {}
func (ConfigureDelegation) isDetails() {}
func (Other) isDetails()               {}

// Transaction is one ledger event as returned by the wallet proxy.
// Amounts are in microCCD. Optional fields are nil when the service omits them
// (rewards carry no hash and no cost).
type Transaction struct {
	ID        uint64
	Hash      *string
	BlockTime float64 // seconds since epoch
	Details   Details
	Cost      *int64
	Total     *int64
	Subtotal  *int64
}

// TypeName returns a short name of the details variant, used in logs and the
// ledger listing.
func (t Transaction) TypeName() string {
	switch d := t.Details.(type) {
	case Transfer:
		return "transfer"
	case PaydayReward:
		return "paydayReward"
	case ConfigureDelegation:
		return "configureDelegation"
	case Other:
		if d.Type == "" {
			return "other"
		}
		return d.Type
	default:
		return "unknown"
	}
}
