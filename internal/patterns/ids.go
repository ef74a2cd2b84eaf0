package patterns

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/irfndi/celebrum-patterns/internal/models"
)

// signalNamespace scopes the name-based UUIDs handed out to signals
var signalNamespace = uuid.MustParse("6f1c8e52-3b7a-5d1e-9a4f-2c8b0d7e6a91")

// signalID derives a stable identifier so identical windows yield identical IDs
func signalID(kind models.PatternType, dir models.Direction, ts time.Time, indexes ...int) string {
	name := fmt.Sprintf("%s:%s:%d:%v", kind, dir, ts.UnixNano(), indexes)
	return uuid.NewSHA1(signalNamespace, []byte(name)).String()
}
