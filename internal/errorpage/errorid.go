package errorpage

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateErrorID returns a fresh id like ERR-20250101-120000-1A2B3C. The
// suffix comes from a random UUID, so ids never repeat for identical errors.
func GenerateErrorID() string {
	return newErrorID(time.Now())
}

func newErrorID(now time.Time) string {
	id := uuid.New()
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:6])
	return "ERR-" + now.UTC().Format("20060102-150405") + "-" + suffix
}
