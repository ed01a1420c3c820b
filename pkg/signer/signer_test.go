package signer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSignVerifyRoundTrip(t *testing.T) {
	priv, pub, err := GenerateKeys()
	require.NoError(t, err)
	require.Len(t, priv, 64)

	sig, date, err := Sign(priv)
	require.NoError(t, err)

	assert.True(t, Verify(pub, sig, date))
}

func TestVerifyRejectsTamperedDate(t *testing.T) {
	priv, pub, err := GenerateKeys()
	require.NoError(t, err)

	sig, date, err := Sign(priv)
	require.NoError(t, err)

	assert.False(t, Verify(pub, sig, date+"x"))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	priv, _, err := GenerateKeys()
	require.NoError(t, err)
	_, otherPub, err := GenerateKeys()
	require.NoError(t, err)

	sig, date, err := Sign(priv)
	require.NoError(t, err)

	assert.False(t, Verify(otherPub, sig, date))
}

func TestVerifyNeverPanicsOnGarbage(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.False(t, Verify("not-base64!!", "not-base64!!", "2024-01-01"))
		assert.False(t, Verify("", "", ""))
	})
}
