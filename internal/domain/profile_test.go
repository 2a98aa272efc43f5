package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeProfile() *Profile {
	return &Profile{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Phone:     "+44 20 7946 0000",
	}
}

func TestProfileCheckRequired(t *testing.T) {
	t.Run("complete profile", func(t *testing.T) {
		assert.NoError(t, completeProfile().CheckRequired())
	})

	t.Run("missing email is enumerated", func(t *testing.T) {
		p := completeProfile()
		p.Email = ""

		err := p.CheckRequired()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrIncompleteProfile))

		var incomplete *IncompleteProfileError
		require.ErrorAs(t, err, &incomplete)
		assert.Equal(t, []string{"email"}, incomplete.Missing)
		assert.Contains(t, err.Error(), "email")
	})

	t.Run("whitespace counts as empty", func(t *testing.T) {
		p := completeProfile()
		p.FirstName = "   "
		p.Phone = ""

		var incomplete *IncompleteProfileError
		require.ErrorAs(t, p.CheckRequired(), &incomplete)
		assert.ElementsMatch(t, []string{"first_name", "phone"}, incomplete.Missing)
	})
}

func TestProfileFullName(t *testing.T) {
	p := completeProfile()
	assert.Equal(t, "Ada Lovelace", p.FullName())

	p.LastName = ""
	assert.Equal(t, "Ada", p.FullName())
}
