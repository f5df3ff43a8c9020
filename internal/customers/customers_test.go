package customers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	ok := Customer{Name: "Ana", Email: "ana@example.com"}
	assert.NoError(t, Validate(ok))

	withPhone := Customer{Name: "Ana", Email: "ana@example.com", Phone: "+62 812 000"}
	assert.NoError(t, Validate(withPhone))

	assert.ErrorIs(t, Validate(Customer{Name: "  ", Email: "ana@example.com"}), ErrValidation)
	assert.ErrorIs(t, Validate(Customer{Name: "Ana", Email: "not-an-email"}), ErrValidation)
	assert.ErrorIs(t, Validate(Customer{Name: "Ana"}), ErrValidation)
}
