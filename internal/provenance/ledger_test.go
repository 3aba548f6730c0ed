package provenance

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreprover/escrow-backend/internal/models"
	"github.com/coreprover/escrow-backend/internal/pkg/apperror"
)

func txRef(chainID uint64, seed string) models.TxRef {
	// Канонический txid: 0x + 64 hex.
	padded := seed + strings.Repeat("0", 64-len(seed))
	return models.TxRef{ChainID: chainID, TxID: "0x" + padded}
}

func TestValidateTxRef(t *testing.T) {
	assert.NoError(t, ValidateTxRef(txRef(1, "abc123")))

	cases := []struct {
		name string
		ref  models.TxRef
	}{
		{"без префикса", models.TxRef{ChainID: 1, TxID: strings.Repeat("a", 66)}},
		{"короткий", models.TxRef{ChainID: 1, TxID: "0x" + strings.Repeat("a", 63)}},
		{"длинный", models.TxRef{ChainID: 1, TxID: "0x" + strings.Repeat("a", 65)}},
		{"не hex", models.TxRef{ChainID: 1, TxID: "0x" + strings.Repeat("g", 64)}},
		{"пустой", models.TxRef{ChainID: 1, TxID: ""}},
		{"нулевой chain_id", models.TxRef{ChainID: 0, TxID: "0x" + strings.Repeat("a", 64)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTxRef(tc.ref)
			assert.True(t, apperror.IsCode(err, apperror.ErrCodeMalformedTxid))
		})
	}
}

func TestLedger_NewBuyerTxIds_ChainMismatch(t *testing.T) {
	l := NewLedger()

	_, err := l.NewBuyerTxIds(1, txRef(2, "aa"))
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeChainMismatch))

	b, err := l.NewBuyerTxIds(1, txRef(1, "aa"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), b.ChainID)
}

func TestLedger_SetWithdraw_Once(t *testing.T) {
	l := NewLedger()
	b, err := l.NewBuyerTxIds(1, txRef(1, "aa"))
	require.NoError(t, err)

	require.NoError(t, l.SetWithdraw(&b, txRef(1, "bb")))
	err = l.SetWithdraw(&b, txRef(1, "cc"))
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeDuplicateSettlement))
	// Первый txid не перезаписан.
	assert.Equal(t, txRef(1, "bb").TxID, b.WithdrawTxid.TxID)
}

func TestLedger_SetFulfill(t *testing.T) {
	l := NewLedger()
	s, err := l.NewSellerTxIds(7, txRef(7, "aa"))
	require.NoError(t, err)

	require.NoError(t, l.SetFulfill(&s, txRef(7, "bb"), 12345))
	require.NotNil(t, s.FulfillTxid)
	require.NotNil(t, s.BlockHeight)
	assert.Equal(t, uint64(12345), *s.BlockHeight)

	err = l.SetFulfill(&s, txRef(8, "cc"), 12346)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeChainMismatch))
}

func TestLedger_SettlementExactlyOne(t *testing.T) {
	l := NewLedger()

	t.Run("claim после refund запрещён", func(t *testing.T) {
		s, err := l.NewSellerTxIds(1, txRef(1, "aa"))
		require.NoError(t, err)
		require.NoError(t, l.SetRefund(&s, txRef(1, "bb")))

		err = l.SetClaim(&s, txRef(1, "cc"))
		assert.True(t, apperror.IsCode(err, apperror.ErrCodeDuplicateSettlement))
		assert.Nil(t, s.ClaimTxid)
	})

	t.Run("refund после claim запрещён", func(t *testing.T) {
		s, err := l.NewSellerTxIds(1, txRef(1, "aa"))
		require.NoError(t, err)
		require.NoError(t, l.SetClaim(&s, txRef(1, "bb")))

		err = l.SetRefund(&s, txRef(1, "cc"))
		assert.True(t, apperror.IsCode(err, apperror.ErrCodeDuplicateSettlement))
		assert.Nil(t, s.RefundTxid)
	})

	t.Run("повторный claim запрещён", func(t *testing.T) {
		s, err := l.NewSellerTxIds(1, txRef(1, "aa"))
		require.NoError(t, err)
		require.NoError(t, l.SetClaim(&s, txRef(1, "bb")))

		err = l.SetClaim(&s, txRef(1, "cc"))
		assert.True(t, apperror.IsCode(err, apperror.ErrCodeDuplicateSettlement))
	})
}

func TestLedger_VerifySettled(t *testing.T) {
	l := NewLedger()
	s, err := l.NewSellerTxIds(1, txRef(1, "aa"))
	require.NoError(t, err)

	err = l.VerifySettled(s)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeMissingSettlement))

	require.NoError(t, l.SetClaim(&s, txRef(1, "bb")))
	assert.NoError(t, l.VerifySettled(s))

	claim := txRef(1, "bb")
	refund := txRef(1, "cc")
	both := models.SellerTxIds{ChainID: 1, AcceptTxid: txRef(1, "aa"), ClaimTxid: &claim, RefundTxid: &refund}
	err = l.VerifySettled(both)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeDuplicateSettlement))
}
