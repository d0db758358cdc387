package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type (
	RoomName string
	RoomID   int64
)

type Room struct {
	ID            RoomID    `json:"id"`
	UUID          uuid.UUID `json:"uuid"`
	Name          RoomName  `json:"name"`
	IsCourseGroup bool      `json:"is_course_group"`
	CreatedAt     time.Time `json:"created_at"`
	ModifiedAt    time.Time `json:"modified_at"`
}

// RoomSpec describes a room to get or create by its unique name.
type RoomSpec struct {
	Name          RoomName
	IsCourseGroup bool
	Members       []UserID
}

// DirectRoomNames returns both historical spellings of the room between two
// external user ids. The first one is canonical and is used on creation.
func DirectRoomNames(a, b string) (canonical, legacy RoomName) {
	if b < a {
		a, b = b, a
	}
	return RoomName(a + "-" + b), RoomName(b + "-" + a)
}

func CourseRoomName(tenantExternalID string, course uuid.UUID) RoomName {
	return RoomName(fmt.Sprintf("%s:%s", tenantExternalID, course))
}
