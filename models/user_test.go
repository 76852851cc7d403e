package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveInitials(t *testing.T) {
	cases := []struct {
		name     string
		expected string
	}{
		{"Alice Brown", "AB"},
		{"alice brown", "AB"},
		{"Alice", "A"},
		{"Alice Mary Brown", "AM"},
		{"  Alice   Brown  ", "AB"},
		{"", ""},
		{"émile zola", "ÉZ"},
	}

	for _, c := range cases {
		assert.Equal(t, c.expected, DeriveInitials(c.name), "name %q", c.name)
	}
}

func TestValidAvatarColor(t *testing.T) {
	for _, c := range []AvatarColor{AvatarTeal, AvatarCyan, AvatarIndigo, AvatarFuchsia, AvatarLime, AvatarYellow, AvatarBlue} {
		assert.True(t, ValidAvatarColor(c))
	}
	assert.False(t, ValidAvatarColor("chartreuse"))
	assert.False(t, ValidAvatarColor(""))
}

func TestDefaultPreferences(t *testing.T) {
	prefs := DefaultPreferences()
	assert.Equal(t, "light", prefs.Theme)
	assert.True(t, prefs.Notifications.Email)
	assert.True(t, prefs.Notifications.ProjectUpdates)
}
