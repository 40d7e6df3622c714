package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserDefaults(t *testing.T) {
	user, err := CreateUser("tester", "tester@example.com", "secret123")
	require.NoError(t, err)

	assert.Equal(t, ROLE_USER, user.Role)
	assert.Equal(t, STATUS_INACTIVE, user.Status)
	assert.Equal(t, "free", user.Tier)
	assert.Nil(t, user.TierExpiresAt)
	assert.True(t, user.CheckPassword("secret123"))
	assert.False(t, user.CheckPassword("wrong"))
}

func TestCreateUserValidation(t *testing.T) {
	_, err := CreateUser("ab", "tester@example.com", "secret123")
	assert.Error(t, err, "username too short")

	_, err = CreateUser("tester", "not-an-email", "secret123")
	assert.Error(t, err, "invalid email")
}

func TestBillingLinkageHelpers(t *testing.T) {
	u := &User{}
	assert.False(t, u.HasBillingCustomer())
	assert.Equal(t, "", u.LinkedSubscriptionID())

	cus := "cus_1"
	sub := "sub_1"
	u.BillingCustomerID = &cus
	u.BillingSubscriptionID = &sub
	assert.True(t, u.HasBillingCustomer())
	assert.Equal(t, "sub_1", u.LinkedSubscriptionID())

	empty := ""
	u.BillingCustomerID = &empty
	assert.False(t, u.HasBillingCustomer())
}

func TestGenerateActivationToken(t *testing.T) {
	u := &User{}
	require.NoError(t, u.GenerateActivationToken())
	assert.Len(t, u.ActivationToken, 32)
	require.NotNil(t, u.ActivationSentAt)
}
