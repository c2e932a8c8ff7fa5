package collab

import "github.com/google/uuid"

// presencePalette holds the display colors handed out to participants. The
// assignment is a deterministic fold over the userId, so the same user keeps
// the same color across reconnects.
var presencePalette = []string{
	"#ef4444", // red
	"#f97316", // orange
	"#eab308", // yellow
	"#22c55e", // green
	"#14b8a6", // teal
	"#3b82f6", // blue
	"#8b5cf6", // violet
	"#ec4899", // pink
	"#64748b", // slate
	"#a16207", // amber
}

// AssignColor maps a user id to a stable palette entry.
func AssignColor(userID uuid.UUID) string {
	sum := 0
	for _, c := range userID.String() {
		sum += int(c)
	}
	return presencePalette[sum%len(presencePalette)]
}
