package kronos

import (
	"github.com/oremus-labs/kronos-go/kronos/kerrors"
	"github.com/oremus-labs/kronos-go/kronos/stream"
)

// Order of events in a Get response.
type Order string

const (
	Ascending  Order = "ascending"
	Descending Order = "descending"
)

func (o Order) validate() error {
	switch o {
	case "", Ascending, Descending:
		return nil
	default:
		return kerrors.Misuse("unknown order %q", string(o))
	}
}

// ParseOrder accepts "asc", "ascending", "desc" or "descending".
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return "", kerrors.Misuse("unknown order %q", s)
	}
}

// GetOptions are the optional parameters of Client.Get.
type GetOptions struct {
	Namespace string
	Order     Order
	// StartID is sent as start_id in place of the start time. The client
	// passes it through unchanged; whether the event with this id is itself
	// returned is up to the server. The bundled mock server excludes it.
	StartID string
	// Limit caps the number of events; 0 means no limit.
	Limit int
}

// DeleteOptions are the optional parameters of Client.Delete.
type DeleteOptions struct {
	Namespace string
	// StartID is passed through as start_id, like GetOptions.StartID.
	StartID string
}

// eventsRequest is the body of get and delete. Exactly one of StartTime and
// StartID is set.
type eventsRequest struct {
	Namespace *string `json:"namespace"`
	Stream    string  `json:"stream"`
	EndTime   Time    `json:"end_time"`
	StartTime *Time   `json:"start_time,omitempty"`
	StartID   string  `json:"start_id,omitempty"`
	Order     Order   `json:"order,omitempty"`
	Limit     int     `json:"limit,omitempty"`
}

type putRequest struct {
	Namespace *string                   `json:"namespace"`
	Events    map[string][]stream.Event `json:"events"`
}

type namespaceRequest struct {
	Namespace *string `json:"namespace"`
}

type schemaRequest struct {
	Stream    string  `json:"stream"`
	Namespace *string `json:"namespace"`
}
