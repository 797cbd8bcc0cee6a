package payments

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateReference composes the external reference sent to the aggregator.
// The plan slug and a user prefix make orphaned callbacks greppable in
// provider dashboards; the hash suffix keeps repeated purchases distinct.
func GenerateReference(planID string, userID uuid.UUID, now time.Time) string {
	userHex := strings.ReplaceAll(userID.String(), "-", "")[:8]
	seed := fmt.Sprintf("%s-%s-%d", planID, userID, now.Unix())
	sum := md5.Sum([]byte(seed))
	return fmt.Sprintf("p%su%sh%s", planID, userHex, hex.EncodeToString(sum[:])[:12])
}
