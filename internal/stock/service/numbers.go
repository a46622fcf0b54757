package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document number prefixes
const (
	transferPrefix     = "TRF"
	dispensationPrefix = "DISP"
)

// newDocumentNumber builds a human-readable document number such as
// TRF-20260830-1A2B3C4D. The uuid suffix keeps concurrent generators
// from colliding without a database round trip.
func newDocumentNumber(prefix string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", prefix, time.Now().UTC().Format("20060102"), suffix)
}
