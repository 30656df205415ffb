package order

// Order is the ranking direction.
type Order string

// Order constants.
const (
	// Descending puts the most relevant documents first.
	Descending Order = "desc"
	Ascending  Order = "asc"
)

// IsValid checks if the order is one of the supported values.
func (o Order) IsValid() bool {
	return o == Descending || o == Ascending
}
