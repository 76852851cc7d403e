package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AvatarColor is one of the fixed palette identifiers used for profile avatars.
type AvatarColor string

const (
	AvatarTeal    AvatarColor = "teal"
	AvatarCyan    AvatarColor = "cyan"
	AvatarIndigo  AvatarColor = "indigo"
	AvatarFuchsia AvatarColor = "fuchsia"
	AvatarLime    AvatarColor = "lime"
	AvatarYellow  AvatarColor = "yellow"
	AvatarBlue    AvatarColor = "blue"
)

// DefaultAvatarColor is assigned at registration when the user picks nothing.
const DefaultAvatarColor = AvatarBlue

func ValidAvatarColor(c AvatarColor) bool {
	switch c {
	case AvatarTeal, AvatarCyan, AvatarIndigo, AvatarFuchsia, AvatarLime, AvatarYellow, AvatarBlue:
		return true
	}
	return false
}

type UserMetrics struct {
	TasksCompleted  int    `bson:"tasksCompleted" json:"tasksCompleted"`
	ActiveProjects  int    `bson:"activeProjects" json:"activeProjects"`
	AvgResponseTime string `bson:"avgResponseTime" json:"avgResponseTime"`
}

type NotificationPreferences struct {
	Email          bool `bson:"email" json:"email"`
	Push           bool `bson:"push" json:"push"`
	TaskAssigned   bool `bson:"taskAssigned" json:"taskAssigned"`
	TaskDue        bool `bson:"taskDue" json:"taskDue"`
	ProjectUpdates bool `bson:"projectUpdates" json:"projectUpdates"`
}

type Preferences struct {
	Notifications NotificationPreferences `bson:"notifications" json:"notifications"`
	Theme         string                  `bson:"theme" json:"theme"`
}

type User struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name               string             `bson:"name" json:"name"`
	Email              string             `bson:"email" json:"email"`
	Password           string             `bson:"password,omitempty" json:"-"`
	Role               string             `bson:"role" json:"role"`
	AvatarColor        AvatarColor        `bson:"avatarColor" json:"avatarColor"`
	Initials           string             `bson:"initials" json:"initials"`
	JoinDate           string             `bson:"joinDate" json:"joinDate"`
	Metrics            UserMetrics        `bson:"metrics" json:"metrics"`
	Preferences        Preferences        `bson:"preferences" json:"preferences"`
	Status             string             `bson:"status" json:"status"`
	IsActive           bool               `bson:"isActive" json:"isActive"`
	VerificationCode   string             `bson:"verificationCode,omitempty" json:"-"`
	VerificationExpiry time.Time          `bson:"verificationExpiry,omitempty" json:"-"`
	CreatedAt          time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// DeriveInitials returns the uppercase first letters of the first two name
// tokens, e.g. "Alice Brown" -> "AB".
func DeriveInitials(name string) string {
	var b strings.Builder
	for i, token := range strings.Fields(name) {
		if i == 2 {
			break
		}
		runes := []rune(token)
		b.WriteString(strings.ToUpper(string(runes[0])))
	}
	return b.String()
}

func DefaultPreferences() Preferences {
	return Preferences{
		Notifications: NotificationPreferences{
			Email:          true,
			Push:           true,
			TaskAssigned:   true,
			TaskDue:        true,
			ProjectUpdates: true,
		},
		Theme: "light",
	}
}
