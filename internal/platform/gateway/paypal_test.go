package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOrderCapturedPayload(t *testing.T) {
	raw := []byte(`{
		"id": "5O190127TN364715T",
		"status": "COMPLETED",
		"purchase_units": [{
			"custom_id": "42",
			"invoice_id": "IEI-SUB-42",
			"amount": {"currency_code": "AUD", "value": "145.00"},
			"payments": {"captures": [{
				"id": "3C679366HH908993F",
				"status": "COMPLETED",
				"amount": {"currency_code": "AUD", "value": "145.00"}
			}]}
		}]
	}`)

	order, err := parseOrder(raw)
	require.NoError(t, err)
	require.Equal(t, "5O190127TN364715T", order.ID)
	require.Equal(t, "COMPLETED", order.Status)
	require.Equal(t, "42", order.CustomID)
	require.Equal(t, "IEI-SUB-42", order.InvoiceID)
	require.Equal(t, "3C679366HH908993F", order.CaptureID)
	require.Equal(t, "AUD", order.Currency)
	require.Equal(t, "145", order.Amount.String())
}

func TestParseOrderRejectsMalformedPayload(t *testing.T) {
	_, err := parseOrder([]byte(`{"status":"COMPLETED"}`))
	require.Error(t, err)

	_, err = parseOrder([]byte(`not json`))
	require.Error(t, err)
}
